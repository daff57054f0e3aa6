package jobs

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"eve-market-watch/internal/db"
)

func TestNotifier_ChunksOfHundred(t *testing.T) {
	d := openTestDB(t)
	seedUser(t, d, 100, "tok-a")
	d.SaveStructure(&db.Structure{StructureID: 111, StructureName: "Trade Hub", TypeID: 35834})
	for i := 0; i < 250; i++ {
		seedWatch(t, d, db.Watch{CharacterID: 100, LocationID: 111, TypeID: int32(1000 + i),
			TypeName: fmt.Sprintf("Item %03d", i), Threshold: 10, Triggered: true})
	}

	if err := NewNotificationCreater(d).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if n, _ := d.CountMailsByStatus(db.MailStatusNew); n != 3 {
		t.Fatalf("queued %d mails, want 3", n)
	}
	sizes := []int{}
	for {
		m, err := d.NextNewMail()
		if err != nil {
			t.Fatalf("next mail: %v", err)
		}
		if m == nil {
			break
		}
		if m.Recipient != 100 || m.Priority != db.MailPriorityWatch {
			t.Errorf("mail %d: recipient %d priority %d", m.ID, m.Recipient, m.Priority)
		}
		sizes = append(sizes, strings.Count(m.Body, "showinfo:1"))
		d.SetMailStatus(m.ID, db.MailStatusSent)
	}
	if len(sizes) != 3 || sizes[0] != 100 || sizes[1] != 100 || sizes[2] != 50 {
		t.Errorf("chunk sizes = %v, want [100 100 50]", sizes)
	}

	watches, _ := d.FindAllWatches()
	for _, w := range watches {
		if !w.MailSent {
			t.Fatalf("watch %d not marked mail_sent", w.TypeID)
		}
	}

	// Nothing left to notify on a second run.
	if err := NewNotificationCreater(d).Run(); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if n, _ := d.CountMailsByStatus(db.MailStatusNew); n != 0 {
		t.Errorf("second run queued %d mails, want 0", n)
	}
}

func TestNotifier_FiltersIneligibleWatches(t *testing.T) {
	d := openTestDB(t)
	seedUser(t, d, 100, "tok-a")
	seedWatch(t, d, db.Watch{CharacterID: 100, LocationID: 111, TypeID: 1, TypeName: "NotTriggered", Threshold: 10})
	seedWatch(t, d, db.Watch{CharacterID: 100, LocationID: 111, TypeID: 2, TypeName: "AlreadySent", Threshold: 10,
		Triggered: true, MailSent: true})
	seedWatch(t, d, db.Watch{CharacterID: 100, LocationID: 111, TypeID: 3, TypeName: "Disabled", Threshold: 10,
		Triggered: true, Disabled: true})
	// Account 999 no longer exists.
	seedWatch(t, d, db.Watch{CharacterID: 999, LocationID: 111, TypeID: 4, TypeName: "Orphan", Threshold: 10,
		Triggered: true})

	if err := NewNotificationCreater(d).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n, _ := d.CountMailsByStatus(db.MailStatusNew); n != 0 {
		t.Errorf("queued %d mails, want 0", n)
	}
	if findWatch(t, d, 999, 111, 4, false).MailSent {
		t.Error("orphan watch marked mail_sent")
	}
}

func TestNotifier_BodyFormat(t *testing.T) {
	d := openTestDB(t)
	seedUser(t, d, 100, "tok-a")
	d.SaveStructure(&db.Structure{StructureID: 111, StructureName: "Trade Hub", TypeID: 35834})
	seedWatch(t, d, db.Watch{CharacterID: 100, LocationID: 111, TypeID: 34, TypeName: "Tritanium",
		Threshold: 100, Triggered: true, CreatedAt: time.Now()})
	seedWatch(t, d, db.Watch{CharacterID: 100, LocationID: 111, TypeID: 35, TypeName: "Pyerite", IsBuy: true,
		Comparator: db.ComparatorGe, Threshold: 200, Triggered: true, CreatedAt: time.Now()})

	if err := NewNotificationCreater(d).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	m, err := d.NextNewMail()
	if err != nil || m == nil {
		t.Fatalf("next mail: %v %v", m, err)
	}

	for _, want := range []string{
		"<url=showinfo:35834//111>Trade Hub</url>",
		"<url=showinfo:34>Tritanium</url> sell volume is below 100 units.",
		"<url=showinfo:35>Pyerite</url> buy volume is at or above 200 units.",
		"This mail was sent to you from https://eve-market-watch.firebaseapp.com",
	} {
		if !strings.Contains(m.Body, want) {
			t.Errorf("body missing %q:\n%s", want, m.Body)
		}
	}
}
