package db

import (
	"database/sql"
	"time"
)

// Mail statuses. FAILED and SENT mails are kept as an audit trail.
const (
	MailStatusNew    = "NEW"
	MailStatusSent   = "SENT"
	MailStatusFailed = "FAILED"
)

// Mail priorities. Watch notifications outrank administrative bulk mail;
// the dispatcher picks the numerically highest priority first.
const (
	MailPriorityWatch = 10
	MailPriorityBulk  = 1
)

// Mail is one queued in-game notification.
type Mail struct {
	ID        int64
	Recipient int32
	Subject   string
	Body      string
	Status    string
	Priority  int
	CreatedAt time.Time
}

// CreateMail queues a new mail and returns its id.
func (d *DB) CreateMail(recipient int32, subject, body string, priority int) (int64, error) {
	res, err := d.sql.Exec(`
		INSERT INTO mails (recipient, subject, body, status, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		recipient, subject, body, MailStatusNew, priority, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateBulkMails queues one priority-1 mail per stored user.
// Returns the number of mails queued.
func (d *DB) CreateBulkMails(subject, body string) (int, error) {
	users, err := d.FindAllUsers()
	if err != nil {
		return 0, err
	}
	for i, u := range users {
		if _, err := d.CreateMail(u.CharacterID, subject, body, MailPriorityBulk); err != nil {
			return i, err
		}
	}
	return len(users), nil
}

// NextNewMail returns the NEW mail with the highest priority (oldest first
// within a priority), or nil when the queue is drained.
func (d *DB) NextNewMail() (*Mail, error) {
	var m Mail
	var createdUnix int64
	err := d.sql.QueryRow(`
		SELECT id, recipient, subject, body, status, priority, created_at
		  FROM mails
		 WHERE status = ?
		 ORDER BY priority DESC, created_at ASC, id ASC
		 LIMIT 1`, MailStatusNew).
		Scan(&m.ID, &m.Recipient, &m.Subject, &m.Body, &m.Status, &m.Priority, &createdUnix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.CreatedAt = time.Unix(createdUnix, 0)
	return &m, nil
}

// SetMailStatus transitions a mail and stamps the update time.
func (d *DB) SetMailStatus(id int64, status string) error {
	_, err := d.sql.Exec(`UPDATE mails SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().Unix(), id)
	return err
}

// CountMailsByStatus reports queue depth for one status.
func (d *DB) CountMailsByStatus(status string) (int, error) {
	var n int
	err := d.sql.QueryRow(`SELECT COUNT(*) FROM mails WHERE status = ?`, status).Scan(&n)
	return n, err
}
