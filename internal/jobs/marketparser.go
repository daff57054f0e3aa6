package jobs

import (
	"errors"
	"fmt"
	"sort"

	"eve-market-watch/internal/auth"
	"eve-market-watch/internal/db"
	"eve-market-watch/internal/esi"
	"eve-market-watch/internal/logger"
)

// MarketParser fetches open orders for every watched location and writes
// volume snapshots. Player structures are read with the credential of an
// account that has watches there; NPC stations are covered by one public
// region fetch per distinct region.
type MarketParser struct {
	db     *db.DB
	client *esi.Client
	tokens *auth.TokenProvider
}

// NewMarketParser creates the parser stage.
func NewMarketParser(d *db.DB, client *esi.Client, tokens *auth.TokenProvider) *MarketParser {
	return &MarketParser{db: d, client: client, tokens: tokens}
}

// typeSide keys an aggregated volume within one location.
type typeSide struct {
	typeID int32
	isBuy  bool
}

// Run executes one parse pass over all watched locations. Per-location
// failures are logged and skipped; they never abort the rest of the run.
func (p *MarketParser) Run() error {
	watches, err := p.db.FindAllWatches()
	if err != nil {
		return fmt.Errorf("load watches: %w", err)
	}
	if len(watches) == 0 {
		return nil
	}

	structures, err := p.loadStructures()
	if err != nil {
		return err
	}

	// Watched type ids and candidate accounts per location.
	watchedTypes := make(map[int64]map[int32]bool)
	candidates := make(map[int64][]int32)
	for _, w := range watches {
		if watchedTypes[w.LocationID] == nil {
			watchedTypes[w.LocationID] = make(map[int32]bool)
		}
		watchedTypes[w.LocationID][w.TypeID] = true
		if !containsID(candidates[w.LocationID], w.CharacterID) {
			candidates[w.LocationID] = append(candidates[w.LocationID], w.CharacterID)
		}
	}

	var stations []int64
	for locationID := range watchedTypes {
		s := structures[locationID]
		if s == nil {
			logger.Warn("Parser", fmt.Sprintf("Location %d has watches but no structure record, skipping", locationID))
			continue
		}
		if s.NpcStation {
			stations = append(stations, locationID)
			continue
		}

		accounts := candidates[locationID]
		sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })
		orders, err := p.fetchStructureOrders(locationID, accounts)
		if err != nil {
			logger.Warn("Parser", fmt.Sprintf("Skipping structure %d this run: %v", locationID, err))
			continue
		}
		p.writeSnapshots(locationID, orders, watchedTypes[locationID])
	}

	p.parseStations(stations, structures, watchedTypes)
	return nil
}

// fetchStructureOrders tries each candidate account in turn. An invalid
// credential penalizes that account, an ACL denial disables that account's
// watches at the location; both move on to the next candidate. Transient
// and unclassified upstream failures skip the location for this run.
func (p *MarketParser) fetchStructureOrders(structureID int64, accounts []int32) ([]esi.MarketOrder, error) {
	for _, characterID := range accounts {
		token, err := p.tokens.AccessToken(characterID)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredential) {
				logger.Warn("Parser", fmt.Sprintf("Refresh rejected for %d: %v", characterID, err))
				penalizeUser(p.db, characterID)
			} else {
				logger.Warn("Parser", fmt.Sprintf("No token for %d: %v", characterID, err))
			}
			continue
		}

		orders, err := p.client.StructureOrders(structureID, token)
		if err == nil {
			if err := p.db.ResetUserErrors(characterID); err != nil {
				logger.Error("Parser", fmt.Sprintf("Failed to reset error counter for %d: %v", characterID, err))
			}
			return orders, nil
		}
		switch {
		case errors.Is(err, esi.ErrUnauthorized):
			logger.Warn("Parser", fmt.Sprintf("Token for %d rejected at structure %d", characterID, structureID))
			penalizeUser(p.db, characterID)
		case errors.Is(err, esi.ErrForbidden):
			n, derr := p.db.DisableWatches(characterID, structureID)
			if derr != nil {
				logger.Error("Parser", fmt.Sprintf("Failed to disable watches for %d at %d: %v", characterID, structureID, derr))
			} else {
				logger.Warn("Parser", fmt.Sprintf("Access denied for %d at structure %d, disabled %d watches", characterID, structureID, n))
			}
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("no account with access to structure %d", structureID)
}

// parseStations groups NPC stations by region and covers each region with
// a single public order fetch, partitioned back per station.
func (p *MarketParser) parseStations(stations []int64, structures map[int64]*db.Structure, watchedTypes map[int64]map[int32]bool) {
	systemConstellation := make(map[int32]int32)
	constellationRegion := make(map[int32]int32)

	byRegion := make(map[int32][]int64)
	for _, stationID := range stations {
		regionID, err := p.stationRegion(structures[stationID], systemConstellation, constellationRegion)
		if err != nil {
			logger.Warn("Parser", fmt.Sprintf("Failed to resolve region for station %d: %v", stationID, err))
			continue
		}
		byRegion[regionID] = append(byRegion[regionID], stationID)
	}

	for regionID, regionStations := range byRegion {
		orders, err := p.client.RegionOrders(regionID)
		if err != nil {
			logger.Warn("Parser", fmt.Sprintf("Skipping region %d this run: %v", regionID, err))
			continue
		}
		byLocation := make(map[int64][]esi.MarketOrder)
		for _, o := range orders {
			byLocation[o.LocationID] = append(byLocation[o.LocationID], o)
		}
		for _, stationID := range regionStations {
			p.writeSnapshots(stationID, byLocation[stationID], watchedTypes[stationID])
		}
	}
}

// stationRegion resolves a station's region through the system and
// constellation lookups, caching per run and persisting on the structure.
func (p *MarketParser) stationRegion(s *db.Structure, systemConstellation, constellationRegion map[int32]int32) (int32, error) {
	if s.RegionID != nil {
		return *s.RegionID, nil
	}

	info, err := p.client.StationInfo(s.StructureID)
	if err != nil {
		return 0, err
	}
	constellationID, ok := systemConstellation[info.SystemID]
	if !ok {
		constellationID, err = p.client.SystemConstellation(info.SystemID)
		if err != nil {
			return 0, err
		}
		systemConstellation[info.SystemID] = constellationID
	}
	regionID, ok := constellationRegion[constellationID]
	if !ok {
		regionID, err = p.client.ConstellationRegion(constellationID)
		if err != nil {
			return 0, err
		}
		constellationRegion[constellationID] = regionID
	}

	if err := p.db.SetStructureRegion(s.StructureID, regionID); err != nil {
		logger.Error("Parser", fmt.Sprintf("Failed to persist region for station %d: %v", s.StructureID, err))
	}
	s.RegionID = &regionID
	return regionID, nil
}

// writeSnapshots sums remaining volume per watched (type, side) and writes
// each snapshot only when the amount changed.
func (p *MarketParser) writeSnapshots(locationID int64, orders []esi.MarketOrder, watched map[int32]bool) {
	sums := make(map[typeSide]int64)
	for _, o := range orders {
		if !watched[o.TypeID] {
			continue
		}
		sums[typeSide{o.TypeID, o.IsBuyOrder}] += o.VolumeRemain
	}

	written := 0
	for key, amount := range sums {
		changed, err := p.db.SaveSnapshotIfChanged(db.Snapshot{
			TypeID:     key.typeID,
			LocationID: locationID,
			IsBuy:      key.isBuy,
			Amount:     amount,
		})
		if err != nil {
			logger.Error("Parser", fmt.Sprintf("Failed to save snapshot for type %d at %d: %v", key.typeID, locationID, err))
			continue
		}
		if changed {
			written++
		}
	}
	logger.Info("Parser", fmt.Sprintf("Location %d: %d orders, %d snapshots updated", locationID, len(orders), written))
}

func (p *MarketParser) loadStructures() (map[int64]*db.Structure, error) {
	all, err := p.db.FindAllStructures()
	if err != nil {
		return nil, fmt.Errorf("load structures: %w", err)
	}
	out := make(map[int64]*db.Structure, len(all))
	for i := range all {
		out[all[i].StructureID] = &all[i]
	}
	return out, nil
}

func containsID(ids []int32, id int32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
