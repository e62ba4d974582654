// Package alerts implements the deadline alert pipeline: dispatching due
// reminder alerts over their channels and flagging milestones that drifted
// past their planned date.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jalonhq/jalon/internal/email"
	"github.com/jalonhq/jalon/internal/store"
	"github.com/jalonhq/jalon/internal/types"
)

// AlertReport summarizes one ProcessScheduledAlerts pass.
type AlertReport struct {
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// OverdueReport summarizes one DetectOverdueDeadlines pass.
type OverdueReport struct {
	Detected int      `json:"detected"`
	Updated  int      `json:"updated"`
	Errors   []string `json:"errors,omitempty"`
}

// RunReport is the combined result of one full runner pass.
type RunReport struct {
	Alerts     AlertReport   `json:"alerts"`
	Overdue    OverdueReport `json:"overdue"`
	ExecutedAt time.Time     `json:"executed_at"`
}

// Runner processes deadline alerts and overdue milestones. It is safe to
// invoke repeatedly; terminal alert states make each alert at-most-once.
// The runner assumes a single process; two processes running concurrently
// would race on the same alert rows.
type Runner struct {
	store     store.Store
	sender    email.Sender
	batchSize int
	now       func() time.Time
}

// NewRunner creates a runner. batchSize bounds the alerts handled per pass.
func NewRunner(s store.Store, sender email.Sender, batchSize int) *Runner {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Runner{
		store:     s,
		sender:    sender,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Run executes both phases sequentially and returns the combined report. It
// never returns an error; phase failures are collected in the report.
func (r *Runner) Run(ctx context.Context) RunReport {
	started := r.now().UTC()

	report := RunReport{
		Alerts:     r.ProcessScheduledAlerts(ctx),
		Overdue:    r.DetectOverdueDeadlines(ctx),
		ExecutedAt: started,
	}

	slog.Info("alert run completed",
		"component", "alerts",
		"processed", report.Alerts.Processed,
		"sent", report.Alerts.Sent,
		"failed", report.Alerts.Failed,
		"overdue_detected", report.Overdue.Detected,
		"duration", time.Since(started).String(),
	)
	return report
}

// ProcessScheduledAlerts dispatches due alerts, at most batchSize of them.
// An alert is marked sent only after every channel it requires succeeded;
// any channel failure marks it failed with the reason and it is never
// retried. One failing alert does not stop the rest of the batch.
func (r *Runner) ProcessScheduledAlerts(ctx context.Context) AlertReport {
	var report AlertReport
	now := r.now().UTC()

	due, err := r.store.ListDueAlerts(ctx, now, r.batchSize)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("list due alerts: %v", err))
		return report
	}

	for _, alert := range due {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, ctx.Err().Error())
			return report
		}
		report.Processed++

		if err := r.dispatch(ctx, alert); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("alert %s: %v", alert.ID, err))
			if markErr := r.store.MarkAlertFailed(ctx, alert.ID, r.now().UTC(), err.Error()); markErr != nil {
				slog.Error("failed to mark alert failed",
					"component", "alerts",
					"alert_id", alert.ID,
					"error", markErr,
				)
			}
			continue
		}

		if err := r.store.MarkAlertSent(ctx, alert.ID, r.now().UTC()); err != nil {
			slog.Error("failed to mark alert sent",
				"component", "alerts",
				"alert_id", alert.ID,
				"error", err,
			)
			report.Errors = append(report.Errors, fmt.Sprintf("alert %s: mark sent: %v", alert.ID, err))
			continue
		}
		report.Sent++
	}

	return report
}

// dispatch attempts every channel the alert requires. All channels must
// succeed for the alert to count as sent; a partial delivery is a failure.
func (r *Runner) dispatch(ctx context.Context, alert types.DeadlineAlert) error {
	if alert.Channel.IncludesEmail() {
		reminder, err := r.buildReminder(ctx, alert)
		if err != nil {
			return fmt.Errorf("resolve context: %w", err)
		}
		if err := r.sender.SendDeadlineReminder(ctx, reminder); err != nil {
			return fmt.Errorf("email channel: %w", err)
		}
	}

	if alert.Channel.IncludesInApp() {
		notifType := "info"
		if alert.Type == types.AlertOverdue {
			notifType = "warning"
		}
		notification := types.Notification{
			ID:          ulid.Make().String(),
			OrgID:       alert.OrgID,
			UserID:      alert.UserID,
			Title:       alert.Subject,
			Description: alert.Body,
			Type:        notifType,
			RelatedKind: "milestone",
			RelatedID:   alert.MilestoneID,
		}
		if err := r.store.CreateNotification(ctx, notification); err != nil {
			return fmt.Errorf("in-app channel: %w", err)
		}
	}

	return nil
}

// buildReminder resolves the milestone and project context of an alert into
// an email payload.
func (r *Runner) buildReminder(ctx context.Context, alert types.DeadlineAlert) (email.Reminder, error) {
	reminder := email.Reminder{
		To:        alert.Email,
		Subject:   alert.Subject,
		Body:      alert.Body,
		IsOverdue: alert.Type == types.AlertOverdue,
	}

	if alert.MilestoneID != "" {
		milestone, err := r.store.GetMilestone(ctx, alert.MilestoneID)
		if err != nil {
			return email.Reminder{}, fmt.Errorf("milestone %s: %w", alert.MilestoneID, err)
		}
		reminder.MilestoneName = milestone.Title
		reminder.PlannedDate = milestone.PlannedDate
		reminder.DaysRemaining = types.DaysUntil(r.now().UTC(), milestone.PlannedDate)

		if milestone.VendorID != "" {
			if vendor, err := r.store.GetVendor(ctx, milestone.VendorID); err == nil {
				reminder.VendorName = vendor.Name
			}
		}
	}

	if alert.ProjectID != "" {
		project, err := r.store.GetProject(ctx, alert.ProjectID)
		if err != nil {
			return email.Reminder{}, fmt.Errorf("project %s: %w", alert.ProjectID, err)
		}
		reminder.ProjectName = project.Name
	}

	return reminder, nil
}

// DetectOverdueDeadlines flags pending milestones whose planned date has
// passed: status flips to overdue, the mirrored event turns the overdue
// color, and an overdue alert plus warning notification are created unless
// an overdue alert for that milestone already exists.
func (r *Runner) DetectOverdueDeadlines(ctx context.Context) OverdueReport {
	var report OverdueReport
	now := r.now().UTC()

	overdue, err := r.store.ListOverduePending(ctx, now)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("list overdue: %v", err))
		return report
	}
	report.Detected = len(overdue)

	for _, milestone := range overdue {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, ctx.Err().Error())
			return report
		}

		if err := r.store.MarkMilestoneOverdue(ctx, milestone.ID, now); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("milestone %s: %v", milestone.ID, err))
			continue
		}
		report.Updated++

		r.createOverdueAlert(ctx, milestone, now)
	}

	return report
}

// createOverdueAlert creates the at-most-one overdue alert and its warning
// notification for a milestone. Best-effort: failures are logged, detection
// of the milestone itself already succeeded.
func (r *Runner) createOverdueAlert(ctx context.Context, milestone types.Milestone, now time.Time) {
	exists, err := r.store.HasOverdueAlert(ctx, milestone.ID)
	if err != nil {
		slog.Warn("failed to check existing overdue alert",
			"component", "alerts",
			"milestone_id", milestone.ID,
			"error", err,
		)
		return
	}
	if exists {
		return
	}

	user := r.resolveRecipient(ctx, milestone)
	if user == nil {
		slog.Debug("no recipient for overdue alert",
			"component", "alerts",
			"milestone_id", milestone.ID,
		)
		return
	}

	projectName := ""
	if project, err := r.store.GetProject(ctx, milestone.ProjectID); err == nil {
		projectName = project.Name
	}

	alert := types.DeadlineAlert{
		ID:           ulid.Make().String(),
		OrgID:        milestone.OrgID,
		ProjectID:    milestone.ProjectID,
		MilestoneID:  milestone.ID,
		UserID:       user.ID,
		Email:        user.Email,
		Type:         types.AlertOverdue,
		Channel:      types.ChannelBoth,
		ScheduledFor: now,
		Subject:      overdueSubject(milestone.Title),
		Body:         overdueBody(projectName, milestone.Title, milestone.PlannedDate),
	}
	if err := r.store.CreateAlert(ctx, alert); err != nil {
		slog.Warn("failed to create overdue alert",
			"component", "alerts",
			"milestone_id", milestone.ID,
			"error", err,
		)
		return
	}

	notification := types.Notification{
		ID:          ulid.Make().String(),
		OrgID:       milestone.OrgID,
		UserID:      user.ID,
		Title:       overdueSubject(milestone.Title),
		Description: overdueBody(projectName, milestone.Title, milestone.PlannedDate),
		Type:        "warning",
		RelatedKind: "milestone",
		RelatedID:   milestone.ID,
	}
	if err := r.store.CreateNotification(ctx, notification); err != nil {
		slog.Warn("failed to create overdue notification",
			"component", "alerts",
			"milestone_id", milestone.ID,
			"error", err,
		)
	}
}

// resolveRecipient finds the user an overdue alert should address: the
// assigned vendor's linked user, when one exists.
func (r *Runner) resolveRecipient(ctx context.Context, milestone types.Milestone) *types.User {
	if milestone.VendorID == "" {
		return nil
	}
	user, err := r.store.GetVendorUser(ctx, milestone.VendorID)
	if err != nil {
		return nil
	}
	return user
}

func overdueSubject(milestoneTitle string) string {
	return fmt.Sprintf("Échéance dépassée : \"%s\"", milestoneTitle)
}

func overdueBody(projectName, milestoneTitle string, plannedDate time.Time) string {
	return fmt.Sprintf(
		"L'échéance \"%s\" du projet \"%s\" était prévue le %s et n'est pas terminée.",
		milestoneTitle, projectName, plannedDate.Format("02/01/2006"),
	)
}
