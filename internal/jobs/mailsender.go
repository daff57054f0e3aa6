package jobs

import (
	"errors"
	"fmt"

	"eve-market-watch/internal/auth"
	"eve-market-watch/internal/db"
	"eve-market-watch/internal/esi"
	"eve-market-watch/internal/logger"
)

// MailSender dispatches one queued mail per invocation through the
// outbound character, highest priority first. One mail per run throttles
// the outbound rate.
type MailSender struct {
	db       *db.DB
	client   *esi.Client
	tokens   *auth.TokenCache
	senderID int32
}

// NewMailSender creates the dispatch stage.
func NewMailSender(d *db.DB, client *esi.Client, tokens *auth.TokenCache, senderID int32) *MailSender {
	return &MailSender{db: d, client: client, tokens: tokens, senderID: senderID}
}

// Run sends the next NEW mail, if any. A transient upstream failure leaves
// the mail queued for the next invocation; any other failure marks it
// FAILED and penalizes the recipient.
func (m *MailSender) Run() error {
	mail, err := m.db.NextNewMail()
	if err != nil {
		return fmt.Errorf("next mail: %w", err)
	}
	if mail == nil {
		return nil
	}

	token, err := m.tokens.Token()
	if err != nil {
		logger.Error("Mailer", fmt.Sprintf("Outbound token unavailable: %v", err))
		return err
	}

	err = m.client.SendMail(m.senderID, token, mail.Recipient, mail.Subject, mail.Body)
	if err == nil {
		logger.Success("Mailer", fmt.Sprintf("Sent mail %d to %d", mail.ID, mail.Recipient))
		return m.db.SetMailStatus(mail.ID, db.MailStatusSent)
	}
	if errors.Is(err, esi.ErrTransient) {
		logger.Warn("Mailer", fmt.Sprintf("Mail %d deferred: %v", mail.ID, err))
		return nil
	}

	logger.Warn("Mailer", fmt.Sprintf("Mail %d to %d failed: %v", mail.ID, mail.Recipient, err))
	if serr := m.db.SetMailStatus(mail.ID, db.MailStatusFailed); serr != nil {
		return serr
	}
	penalizeUser(m.db, mail.Recipient)
	return nil
}
