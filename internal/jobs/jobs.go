// Package jobs holds the scheduled pipeline stages: order parsing into
// volume snapshots, watch evaluation, notification batching, mail dispatch
// and reconciliation of disabled watches.
package jobs

import (
	"fmt"

	"eve-market-watch/internal/db"
	"eve-market-watch/internal/logger"
)

// maxUserErrors is the consecutive-failure count at which an account is
// deactivated.
const maxUserErrors = 5

const appURL = "https://eve-market-watch.firebaseapp.com"

const deactivationSubject = "Your account has been deactivated"

const deactivationBody = "Your market watch account has been deactivated after " +
	"repeated delivery or credential failures. Your watches were kept but will " +
	"no longer be processed until you log in again.\n\n" +
	"This mail was sent to you from " + appURL

// penalizeUser bumps the account's error counter. At the deactivation
// threshold it queues a final explanatory mail and deletes the account;
// the watches stay but no longer resolve a credential.
func penalizeUser(d *db.DB, characterID int32) {
	count, err := d.IncrementUserErrors(characterID)
	if err != nil {
		logger.Error("Jobs", fmt.Sprintf("Failed to bump error counter for %d: %v", characterID, err))
		return
	}
	if count < maxUserErrors {
		return
	}
	logger.Warn("Jobs", fmt.Sprintf("Deactivating account %d after %d consecutive failures", characterID, count))
	if _, err := d.CreateMail(characterID, deactivationSubject, deactivationBody, db.MailPriorityBulk); err != nil {
		logger.Error("Jobs", fmt.Sprintf("Failed to queue deactivation mail for %d: %v", characterID, err))
	}
	if err := d.DeleteUser(characterID); err != nil {
		logger.Error("Jobs", fmt.Sprintf("Failed to delete account %d: %v", characterID, err))
	}
}
