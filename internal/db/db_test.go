package db

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// openTestDB opens an in-memory SQLite DB and runs migrations (for testing only).
func openTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestDB_WatchRoundTrip(t *testing.T) {
	d := openTestDB(t)

	w := &Watch{
		CharacterID: 1001,
		LocationID:  1027847407700,
		TypeID:      608,
		TypeName:    "Atron",
		Comparator:  ComparatorLt,
		Threshold:   10,
		CreatedAt:   time.Now().Add(-time.Hour),
	}
	if err := d.SaveWatch(w); err != nil {
		t.Fatalf("SaveWatch: %v", err)
	}

	all, err := d.FindAllWatches()
	if err != nil {
		t.Fatalf("FindAllWatches: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("FindAllWatches len = %d, want 1", len(all))
	}
	got := all[0]
	if got.TypeName != "Atron" || got.Threshold != 10 || got.Comparator != ComparatorLt {
		t.Errorf("watch = %+v", got)
	}
	if got.Triggered || got.MailSent || got.Disabled {
		t.Errorf("fresh watch should have no flags set: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt lost in round trip")
	}

	// Upsert on the same key mutates in place rather than duplicating.
	w.Triggered = true
	if err := d.SaveWatch(w); err != nil {
		t.Fatalf("SaveWatch update: %v", err)
	}
	all, _ = d.FindAllWatches()
	if len(all) != 1 || !all[0].Triggered {
		t.Fatalf("after update len=%d triggered=%v, want 1/true", len(all), all[0].Triggered)
	}
}

func TestDB_SaveWatch_NormalizesComparator(t *testing.T) {
	d := openTestDB(t)

	w := &Watch{CharacterID: 1, LocationID: 2, TypeID: 3, Comparator: "bogus"}
	if err := d.SaveWatch(w); err != nil {
		t.Fatalf("SaveWatch: %v", err)
	}
	all, _ := d.FindAllWatches()
	if all[0].Comparator != ComparatorLt {
		t.Errorf("Comparator = %q, want lt default", all[0].Comparator)
	}
}

func TestDB_DisableEnableWatches(t *testing.T) {
	d := openTestDB(t)

	for _, typeID := range []int32{34, 35, 36} {
		d.SaveWatch(&Watch{CharacterID: 7, LocationID: 100, TypeID: typeID})
	}
	d.SaveWatch(&Watch{CharacterID: 7, LocationID: 200, TypeID: 34})
	d.SaveWatch(&Watch{CharacterID: 8, LocationID: 100, TypeID: 34})

	n, err := d.DisableWatches(7, 100)
	if err != nil {
		t.Fatalf("DisableWatches: %v", err)
	}
	if n != 3 {
		t.Fatalf("DisableWatches affected %d, want 3", n)
	}

	all, _ := d.FindAllWatches()
	disabled := 0
	for _, w := range all {
		if w.Disabled {
			disabled++
			if w.CharacterID != 7 || w.LocationID != 100 {
				t.Errorf("unexpected disabled watch: %+v", w)
			}
		}
	}
	if disabled != 3 {
		t.Errorf("disabled count = %d, want 3", disabled)
	}

	n, err = d.EnableWatches(7, 100)
	if err != nil || n != 3 {
		t.Fatalf("EnableWatches = %d, %v; want 3, nil", n, err)
	}
}

func TestDB_ResetWatches(t *testing.T) {
	d := openTestDB(t)

	d.SaveWatch(&Watch{CharacterID: 5, LocationID: 1, TypeID: 34, Triggered: true, MailSent: true})
	d.SaveWatch(&Watch{CharacterID: 5, LocationID: 1, TypeID: 35, Triggered: true})
	d.SaveWatch(&Watch{CharacterID: 6, LocationID: 1, TypeID: 34, Triggered: true})

	n, err := d.ResetWatches(5)
	if err != nil {
		t.Fatalf("ResetWatches: %v", err)
	}
	if n != 2 {
		t.Fatalf("ResetWatches affected %d, want 2", n)
	}
	byChar, _ := d.FindWatchesByCharacter(5)
	for _, w := range byChar {
		if w.Triggered || w.MailSent {
			t.Errorf("watch not reset: %+v", w)
		}
	}
	other, _ := d.FindWatchesByCharacter(6)
	if len(other) != 1 || !other[0].Triggered {
		t.Error("ResetWatches must not touch other characters")
	}
}

func TestDB_StructureRoundTripAndRegion(t *testing.T) {
	d := openTestDB(t)

	s := &Structure{
		StructureID:   60003760,
		StructureName: "Jita IV - Moon 4 - Caldari Navy Assembly Plant",
		TypeID:        52678,
		NpcStation:    true,
		MarketService: true,
	}
	if err := d.SaveStructure(s); err != nil {
		t.Fatalf("SaveStructure: %v", err)
	}

	got, err := d.FindStructure(60003760)
	if err != nil || got == nil {
		t.Fatalf("FindStructure: %v, %v", got, err)
	}
	if !got.NpcStation || !got.MarketService || got.RegionID != nil {
		t.Errorf("structure = %+v, want npc+market and nil region", got)
	}

	if err := d.SetStructureRegion(60003760, 10000002); err != nil {
		t.Fatalf("SetStructureRegion: %v", err)
	}
	got, _ = d.FindStructure(60003760)
	if got.RegionID == nil || *got.RegionID != 10000002 {
		t.Fatalf("RegionID = %v, want 10000002", got.RegionID)
	}

	// Re-saving without a region id must not wipe the resolved one.
	if err := d.SaveStructure(s); err != nil {
		t.Fatalf("SaveStructure again: %v", err)
	}
	got, _ = d.FindStructure(60003760)
	if got.RegionID == nil || *got.RegionID != 10000002 {
		t.Fatalf("RegionID after re-save = %v, want 10000002", got.RegionID)
	}

	if missing, err := d.FindStructure(42); err != nil || missing != nil {
		t.Errorf("FindStructure(42) = %v, %v; want nil, nil", missing, err)
	}
}

func TestDB_SnapshotWriteSkippedWhenUnchanged(t *testing.T) {
	d := openTestDB(t)

	s := Snapshot{TypeID: 34, LocationID: 60003760, IsBuy: false, Amount: 5000}
	written, err := d.SaveSnapshotIfChanged(s)
	if err != nil {
		t.Fatalf("SaveSnapshotIfChanged: %v", err)
	}
	if !written {
		t.Fatal("first save should write")
	}

	written, err = d.SaveSnapshotIfChanged(s)
	if err != nil {
		t.Fatalf("SaveSnapshotIfChanged repeat: %v", err)
	}
	if written {
		t.Fatal("unchanged amount must not be rewritten")
	}

	s.Amount = 4000
	written, _ = d.SaveSnapshotIfChanged(s)
	if !written {
		t.Fatal("changed amount should write")
	}

	// Buy and sell sides are distinct snapshots.
	buy := Snapshot{TypeID: 34, LocationID: 60003760, IsBuy: true, Amount: 4000}
	written, _ = d.SaveSnapshotIfChanged(buy)
	if !written {
		t.Fatal("buy side is a separate snapshot and should write")
	}

	all, err := d.FindAllSnapshots()
	if err != nil {
		t.Fatalf("FindAllSnapshots: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("FindAllSnapshots len = %d, want 2", len(all))
	}
}

func TestDB_UserErrorCounter(t *testing.T) {
	d := openTestDB(t)

	u := &User{CharacterID: 9001, CharacterName: "Pilot", RefreshToken: "rt"}
	if err := d.SaveUser(u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	for want := 1; want <= 3; want++ {
		n, err := d.IncrementUserErrors(9001)
		if err != nil {
			t.Fatalf("IncrementUserErrors: %v", err)
		}
		if n != want {
			t.Fatalf("error count = %d, want %d", n, want)
		}
	}

	if err := d.ResetUserErrors(9001); err != nil {
		t.Fatalf("ResetUserErrors: %v", err)
	}
	got, _ := d.FindUser(9001)
	if got.ErrorCount != 0 {
		t.Errorf("ErrorCount after reset = %d", got.ErrorCount)
	}

	// Incrementing an unknown character is a no-op.
	n, err := d.IncrementUserErrors(424242)
	if err != nil || n != 0 {
		t.Errorf("IncrementUserErrors(unknown) = %d, %v; want 0, nil", n, err)
	}

	if err := d.DeleteUser(9001); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if got, _ := d.FindUser(9001); got != nil {
		t.Error("FindUser after delete should return nil")
	}
}

func TestDB_MailQueuePriorityOrdering(t *testing.T) {
	d := openTestDB(t)

	if m, err := d.NextNewMail(); err != nil || m != nil {
		t.Fatalf("NextNewMail on empty queue = %v, %v; want nil, nil", m, err)
	}

	bulkID, err := d.CreateMail(1, "Service notice", "body", MailPriorityBulk)
	if err != nil {
		t.Fatalf("CreateMail: %v", err)
	}
	watchID, err := d.CreateMail(2, "Market watch notification", "body", MailPriorityWatch)
	if err != nil {
		t.Fatalf("CreateMail: %v", err)
	}

	m, err := d.NextNewMail()
	if err != nil {
		t.Fatalf("NextNewMail: %v", err)
	}
	if m == nil || m.ID != watchID {
		t.Fatalf("NextNewMail = %+v, want watch mail %d first", m, watchID)
	}

	if err := d.SetMailStatus(watchID, MailStatusSent); err != nil {
		t.Fatalf("SetMailStatus: %v", err)
	}
	m, _ = d.NextNewMail()
	if m == nil || m.ID != bulkID {
		t.Fatalf("NextNewMail after SENT = %+v, want bulk mail %d", m, bulkID)
	}

	if err := d.SetMailStatus(bulkID, MailStatusFailed); err != nil {
		t.Fatalf("SetMailStatus: %v", err)
	}
	if m, _ := d.NextNewMail(); m != nil {
		t.Fatalf("queue should be drained, got %+v", m)
	}

	sent, _ := d.CountMailsByStatus(MailStatusSent)
	failed, _ := d.CountMailsByStatus(MailStatusFailed)
	if sent != 1 || failed != 1 {
		t.Errorf("sent/failed = %d/%d, want 1/1", sent, failed)
	}
}

func TestDB_CreateBulkMails(t *testing.T) {
	d := openTestDB(t)

	d.SaveUser(&User{CharacterID: 1, RefreshToken: "a"})
	d.SaveUser(&User{CharacterID: 2, RefreshToken: "b"})

	n, err := d.CreateBulkMails("Maintenance", "The service will be down.")
	if err != nil {
		t.Fatalf("CreateBulkMails: %v", err)
	}
	if n != 2 {
		t.Fatalf("CreateBulkMails queued %d, want 2", n)
	}

	m, _ := d.NextNewMail()
	if m == nil || m.Priority != MailPriorityBulk {
		t.Fatalf("bulk mail = %+v, want priority %d", m, MailPriorityBulk)
	}
}
