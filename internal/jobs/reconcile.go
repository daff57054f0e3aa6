package jobs

import (
	"fmt"

	"eve-market-watch/internal/auth"
	"eve-market-watch/internal/db"
	"eve-market-watch/internal/esi"
	"eve-market-watch/internal/logger"
)

// Reconciler re-probes disabled watches at player structures and re-enables
// them when the owning account's market access was restored. Watches at NPC
// stations are never auto-disabled, so they are skipped.
type Reconciler struct {
	db     *db.DB
	client *esi.Client
	tokens *auth.TokenProvider
}

// NewReconciler creates the reconciliation stage.
func NewReconciler(d *db.DB, client *esi.Client, tokens *auth.TokenProvider) *Reconciler {
	return &Reconciler{db: d, client: client, tokens: tokens}
}

// Run probes each (account, location) pair with disabled watches once.
func (r *Reconciler) Run() error {
	watches, err := r.db.FindAllWatches()
	if err != nil {
		return fmt.Errorf("load watches: %w", err)
	}

	type pair struct {
		characterID int32
		locationID  int64
	}
	pairs := make(map[pair]bool)
	for _, w := range watches {
		if w.Disabled {
			pairs[pair{w.CharacterID, w.LocationID}] = true
		}
	}
	if len(pairs) == 0 {
		return nil
	}

	structures, err := r.db.FindAllStructures()
	if err != nil {
		return fmt.Errorf("load structures: %w", err)
	}
	byID := make(map[int64]db.Structure, len(structures))
	for _, s := range structures {
		byID[s.StructureID] = s
	}

	for p := range pairs {
		s, ok := byID[p.locationID]
		if !ok || s.NpcStation {
			continue
		}

		token, err := r.tokens.AccessToken(p.characterID)
		if err != nil {
			logger.Warn("Reconciler", fmt.Sprintf("No token for %d, skipping structure %d: %v", p.characterID, p.locationID, err))
			continue
		}
		if !r.client.HasMarketAccess(p.locationID, token) {
			continue
		}

		n, err := r.db.EnableWatches(p.characterID, p.locationID)
		if err != nil {
			logger.Error("Reconciler", fmt.Sprintf("Failed to re-enable watches for %d at %d: %v", p.characterID, p.locationID, err))
			continue
		}
		logger.Success("Reconciler", fmt.Sprintf("Access restored for %d at structure %d, re-enabled %d watches", p.characterID, p.locationID, n))
	}
	return nil
}
