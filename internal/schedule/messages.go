package schedule

import (
	"fmt"
	"time"
)

// ReminderSubject builds the subject line of a J-2 or J-1 reminder.
func ReminderSubject(milestoneTitle string, daysRemaining int) string {
	if daysRemaining <= 1 {
		return fmt.Sprintf("Rappel : échéance \"%s\" demain", milestoneTitle)
	}
	return fmt.Sprintf("Rappel : échéance \"%s\" dans %d jours", milestoneTitle, daysRemaining)
}

// ReminderBody builds the plain-text body of a reminder alert.
func ReminderBody(vendorName, projectName, milestoneTitle string, plannedDate time.Time, daysRemaining int) string {
	when := "demain"
	if daysRemaining > 1 {
		when = fmt.Sprintf("dans %d jours", daysRemaining)
	}
	return fmt.Sprintf(
		"Bonjour %s,\n\nL'échéance \"%s\" du projet \"%s\" arrive %s, le %s.\n\nMerci de confirmer que la livraison est en bonne voie.",
		vendorName, milestoneTitle, projectName, when, plannedDate.Format("02/01/2006"),
	)
}
