// Package search discovers market locations by free-text term, resolving
// NPC stations and player structures in parallel.
package search

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"eve-market-watch/internal/db"
	"eve-market-watch/internal/esi"
	"eve-market-watch/internal/logger"
)

// maxResults caps the merged result list.
const maxResults = 10

// maxCandidates bounds how many candidates per category get resolved,
// matching the resolution pool size.
const maxCandidates = 50

// Structure types that can never host a market (jump gates, cyno beacons,
// jammers, non-market Upwell hulls). Filtered before and after resolution.
var ignoredStructureTypes = map[int32]bool{
	35825: true, // Raitaru
	35835: true, // Athanor
	35836: true, // Tatara
	35841: true, // Ansiblex Jump Gate
	35840: true, // Pharolux Cyno Beacon
	37534: true, // Tenebrex Cyno Jammer
	27674: true, // Cynosural System Jammer
}

// Store is the slice of the persistence layer the resolver needs.
type Store interface {
	FindAllStructures() ([]db.Structure, error)
	SaveStructure(s *db.Structure) error
}

// Resolver finds and names market locations matching a search term.
type Resolver struct {
	store  Store
	client *esi.Client
}

// New creates a Resolver over the given store and ESI client.
func New(store Store, client *esi.Client) *Resolver {
	return &Resolver{store: store, client: client}
}

// Search resolves NPC stations (public) and player structures (visible to
// the acting character) matching term. Known locations are served from the
// store; unknown ones are name-resolved through a bounded worker pool and
// persisted. Individual resolution failures only drop that candidate.
// Returns up to 10 display names, sorted case-insensitively.
func (r *Resolver) Search(term string, characterID int32, accessToken string) ([]string, error) {
	known, err := r.store.FindAllStructures()
	if err != nil {
		return nil, fmt.Errorf("load known structures: %w", err)
	}
	knownByID := make(map[int64]db.Structure, len(known))
	for _, s := range known {
		knownByID[s.StructureID] = s
	}

	// Both category searches run concurrently; a failed search just
	// yields no candidates for that category.
	var stationIDs, structureIDs []int64
	var searches errgroup.Group
	searches.Go(func() error {
		ids, err := r.client.SearchStations(term)
		if err != nil {
			logger.Warn("Search", fmt.Sprintf("Station search for %q failed: %v", term, err))
			return nil
		}
		stationIDs = ids
		return nil
	})
	searches.Go(func() error {
		ids, err := r.client.SearchStructures(characterID, accessToken, term)
		if err != nil {
			logger.Warn("Search", fmt.Sprintf("Structure search for %q failed: %v", term, err))
			return nil
		}
		structureIDs = ids
		return nil
	})
	searches.Wait()

	var mu sync.Mutex
	var resolved []db.Structure
	add := func(s db.Structure) {
		mu.Lock()
		resolved = append(resolved, s)
		mu.Unlock()
	}

	var pool errgroup.Group
	pool.SetLimit(maxCandidates)

	r.queueStations(&pool, stationIDs, knownByID, add)
	r.queueStructures(&pool, structureIDs, knownByID, accessToken, add)
	pool.Wait()

	return mergeNames(resolved), nil
}

// queueStations schedules resolution of NPC station candidates. Known
// stations are answered from the store without a network call.
func (r *Resolver) queueStations(pool *errgroup.Group, ids []int64, knownByID map[int64]db.Structure, add func(db.Structure)) {
	count := 0
	for _, id := range ids {
		if count >= maxCandidates {
			break
		}
		count++

		if s, ok := knownByID[id]; ok {
			if s.MarketService && !ignoredStructureTypes[s.TypeID] {
				add(s)
			}
			continue
		}

		stationID := id
		pool.Go(func() error {
			info, err := r.client.StationInfo(stationID)
			if err != nil {
				logger.Warn("Search", fmt.Sprintf("Failed to resolve station %d: %v", stationID, err))
				return nil
			}
			s := db.Structure{
				StructureID:   stationID,
				StructureName: info.Name,
				TypeID:        info.TypeID,
				NpcStation:    true,
				MarketService: info.HasMarket(),
			}
			if err := r.store.SaveStructure(&s); err != nil {
				logger.Warn("Search", fmt.Sprintf("Failed to persist station %d: %v", stationID, err))
			}
			if s.MarketService && !ignoredStructureTypes[s.TypeID] {
				add(s)
			}
			return nil
		})
	}
}

// queueStructures schedules resolution of player structure candidates.
// Candidates are always re-resolved through the acting character's token,
// since the resolution call is what verifies the ACL; only structures
// already known to be non-markets are filtered up front.
func (r *Resolver) queueStructures(pool *errgroup.Group, ids []int64, knownByID map[int64]db.Structure, accessToken string, add func(db.Structure)) {
	count := 0
	for _, id := range ids {
		if s, ok := knownByID[id]; ok && ignoredStructureTypes[s.TypeID] {
			continue
		}
		if count >= maxCandidates {
			break
		}
		count++

		structureID := id
		known := knownByID[structureID]
		pool.Go(func() error {
			info, err := r.client.StructureInfo(structureID, accessToken)
			if err != nil {
				logger.Warn("Search", fmt.Sprintf("Failed to resolve structure %d: %v", structureID, err))
				return nil
			}
			s := db.Structure{
				StructureID:   structureID,
				StructureName: info.Name,
				TypeID:        info.TypeID,
			}
			if known.StructureID == 0 {
				if err := r.store.SaveStructure(&s); err != nil {
					logger.Warn("Search", fmt.Sprintf("Failed to persist structure %d: %v", structureID, err))
				}
			}
			if !ignoredStructureTypes[s.TypeID] {
				add(s)
			}
			return nil
		})
	}
}

// mergeNames deduplicates by location, sorts case-insensitively and caps
// the result list.
func mergeNames(structures []db.Structure) []string {
	seen := make(map[int64]bool, len(structures))
	names := make([]string, 0, len(structures))
	for _, s := range structures {
		if seen[s.StructureID] {
			continue
		}
		seen[s.StructureID] = true
		names = append(names, s.StructureName)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	if len(names) > maxResults {
		names = names[:maxResults]
	}
	return names
}
