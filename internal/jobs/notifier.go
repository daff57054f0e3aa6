package jobs

import (
	"fmt"
	"sort"
	"strings"

	"eve-market-watch/internal/db"
	"eve-market-watch/internal/logger"
)

// chunkSize caps how many watches go into a single notification mail.
const chunkSize = 100

const notificationSubject = "Market watch alert"

// NotificationCreater turns triggered, not-yet-notified watches into
// queued mails, one mail per account per chunk of 100 watches.
type NotificationCreater struct {
	db *db.DB
}

// NewNotificationCreater creates the batching stage.
func NewNotificationCreater(d *db.DB) *NotificationCreater {
	return &NotificationCreater{db: d}
}

// Run batches pending notifications. The mail_sent flag is set while the
// chunk is assembled, before the mail row is written: a crash in between
// loses that notification instead of duplicating it.
func (n *NotificationCreater) Run() error {
	watches, err := n.db.FindAllWatches()
	if err != nil {
		return fmt.Errorf("load watches: %w", err)
	}
	users, err := n.db.FindAllUsers()
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	known := make(map[int32]bool, len(users))
	for _, u := range users {
		known[u.CharacterID] = true
	}

	pending := watches[:0]
	for _, w := range watches {
		if w.Triggered && !w.MailSent && !w.Disabled && known[w.CharacterID] {
			pending = append(pending, w)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return strings.ToLower(pending[i].TypeName) < strings.ToLower(pending[j].TypeName)
	})

	structures, err := n.db.FindAllStructures()
	if err != nil {
		return fmt.Errorf("load structures: %w", err)
	}
	names := make(map[int64]db.Structure, len(structures))
	for _, s := range structures {
		names[s.StructureID] = s
	}

	byAccount := make(map[int32][]db.Watch)
	var accounts []int32
	for _, w := range pending {
		if byAccount[w.CharacterID] == nil {
			accounts = append(accounts, w.CharacterID)
		}
		byAccount[w.CharacterID] = append(byAccount[w.CharacterID], w)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	mails := 0
	for _, characterID := range accounts {
		list := byAccount[characterID]
		for start := 0; start < len(list); start += chunkSize {
			end := start + chunkSize
			if end > len(list) {
				end = len(list)
			}
			if err := n.sendChunk(characterID, list[start:end], names); err != nil {
				logger.Error("Notifier", fmt.Sprintf("Failed to queue mail for %d: %v", characterID, err))
				continue
			}
			mails++
		}
	}
	logger.Info("Notifier", fmt.Sprintf("Queued %d notification mails for %d watches", mails, len(pending)))
	return nil
}

func (n *NotificationCreater) sendChunk(characterID int32, chunk []db.Watch, names map[int64]db.Structure) error {
	for i := range chunk {
		chunk[i].MailSent = true
		if err := n.db.SaveWatch(&chunk[i]); err != nil {
			return fmt.Errorf("mark watch sent: %w", err)
		}
	}
	body := renderBody(chunk, names)
	if _, err := n.db.CreateMail(characterID, notificationSubject, body, db.MailPriorityWatch); err != nil {
		return fmt.Errorf("create mail: %w", err)
	}
	return nil
}

// renderBody lists the chunk's watches grouped per location, with in-game
// link markup so the client renders clickable names.
func renderBody(chunk []db.Watch, names map[int64]db.Structure) string {
	byLocation := make(map[int64][]db.Watch)
	var locations []int64
	for _, w := range chunk {
		if byLocation[w.LocationID] == nil {
			locations = append(locations, w.LocationID)
		}
		byLocation[w.LocationID] = append(byLocation[w.LocationID], w)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i] < locations[j] })

	var b strings.Builder
	for _, locationID := range locations {
		if s, ok := names[locationID]; ok {
			fmt.Fprintf(&b, "<url=showinfo:%d//%d>%s</url>\n", s.TypeID, locationID, s.StructureName)
		} else {
			fmt.Fprintf(&b, "Location %d\n", locationID)
		}
		for _, w := range byLocation[locationID] {
			side := "sell"
			if w.IsBuy {
				side = "buy"
			}
			fmt.Fprintf(&b, "<url=showinfo:%d>%s</url> %s volume is %s %d units.\n",
				w.TypeID, w.TypeName, side, comparatorPhrase(w.Comparator), w.Threshold)
		}
		b.WriteString("\n")
	}
	b.WriteString("This mail was sent to you from " + appURL)
	return b.String()
}

func comparatorPhrase(comparator string) string {
	switch comparator {
	case db.ComparatorLe:
		return "at or below"
	case db.ComparatorGt:
		return "above"
	case db.ComparatorGe:
		return "at or above"
	default:
		return "below"
	}
}
