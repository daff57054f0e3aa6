package jobs

import (
	"fmt"
	"time"

	"eve-market-watch/internal/db"
	"eve-market-watch/internal/logger"
)

// missingGrace is how old a watch must be before a missing snapshot counts
// as zero inventory. Fresh watches stay idle until the first parse run had
// a fair chance to produce data.
const missingGrace = 10 * time.Minute

// WatchChecker evaluates every enabled watch against the latest snapshot
// and flips the triggered state accordingly.
type WatchChecker struct {
	db *db.DB
}

// NewWatchChecker creates the evaluator stage.
func NewWatchChecker(d *db.DB) *WatchChecker {
	return &WatchChecker{db: d}
}

// Run evaluates all watches once. Transitions are idempotent; a second run
// over unchanged data writes nothing.
func (c *WatchChecker) Run() error {
	snapshots, err := c.db.FindAllSnapshots()
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	amounts := make(map[snapshotKey]int64, len(snapshots))
	for _, s := range snapshots {
		amounts[snapshotKey{s.TypeID, s.LocationID, s.IsBuy}] = s.Amount
	}

	watches, err := c.db.FindAllWatches()
	if err != nil {
		return fmt.Errorf("load watches: %w", err)
	}

	now := time.Now()
	changed := 0
	for i := range watches {
		w := &watches[i]
		if w.Disabled {
			continue
		}

		dirty := false
		if w.CreatedAt.IsZero() {
			// Rows from before the column existed count as an hour old.
			w.CreatedAt = now.Add(-time.Hour)
			dirty = true
		}

		amount, ok := amounts[snapshotKey{w.TypeID, w.LocationID, w.IsBuy}]
		switch {
		case ok:
			hit := evaluate(w.Comparator, amount, w.Threshold)
			if hit && !w.Triggered {
				w.Triggered = true
				dirty = true
			} else if !hit && (w.Triggered || w.MailSent) {
				w.Triggered = false
				w.MailSent = false
				dirty = true
			}
		case !w.Triggered && absenceSensitive(w) && now.Sub(w.CreatedAt) > missingGrace:
			// No market data at all means zero inventory.
			w.Triggered = true
			dirty = true
		}

		if dirty {
			if err := c.db.SaveWatch(w); err != nil {
				logger.Error("Checker", fmt.Sprintf("Failed to save watch %d/%d/%d: %v", w.CharacterID, w.LocationID, w.TypeID, err))
				continue
			}
			changed++
		}
	}
	logger.Info("Checker", fmt.Sprintf("Evaluated %d watches, %d changed", len(watches), changed))
	return nil
}

type snapshotKey struct {
	typeID     int32
	locationID int64
	isBuy      bool
}

func evaluate(comparator string, amount, threshold int64) bool {
	switch comparator {
	case db.ComparatorLe:
		return amount <= threshold
	case db.ComparatorGt:
		return amount > threshold
	case db.ComparatorGe:
		return amount >= threshold
	default:
		return amount < threshold
	}
}

// absenceSensitive reports whether a missing snapshot can satisfy the
// comparator. Zero inventory is below any positive threshold.
func absenceSensitive(w *db.Watch) bool {
	switch w.Comparator {
	case db.ComparatorLe:
		return w.Threshold > 0
	case db.ComparatorGt, db.ComparatorGe:
		return false
	default:
		return true
	}
}
