package esi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MailRecipient is one typed recipient of an in-game mail.
type MailRecipient struct {
	RecipientID   int32  `json:"recipient_id"`
	RecipientType string `json:"recipient_type"`
}

// MailRequest is the ESI mail send payload.
type MailRequest struct {
	Recipients []MailRecipient `json:"recipients"`
	Subject    string          `json:"subject"`
	Body       string          `json:"body"`
}

// SendMail sends an in-game mail from senderID to a single character.
// ESI answers 201 on success; other statuses surface as classified errors.
func (c *Client) SendMail(senderID int32, accessToken string, recipient int32, subject, body string) error {
	payload, err := json.Marshal(MailRequest{
		Recipients: []MailRecipient{{RecipientID: recipient, RecipientType: "character"}},
		Subject:    subject,
		Body:       body,
	})
	if err != nil {
		return err
	}

	req, err := newRequest("POST", fmt.Sprintf("%s/characters/%d/mail/", c.base, senderID), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, accessToken, nil); err != nil {
		return fmt.Errorf("send mail to %d: %w", recipient, err)
	}
	return nil
}
