package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jalonhq/jalon/internal/store"
	"github.com/jalonhq/jalon/internal/types"
)

// Engine completes milestones and handles the follow-up work the completion
// triggers. The status flip, event update and dependent reschedules commit in
// one store transaction; reminder alerts and the vendor notification run
// afterwards and are best-effort.
type Engine struct {
	store store.Store
	now   func() time.Time
}

// NewEngine creates a completion engine.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s, now: time.Now}
}

// Complete marks a milestone completed at the given time, reschedules its
// direct dependents, and returns which dependents moved. A zero time means
// now. Completing an already-completed or overdue milestone is allowed.
//
// Only direct dependents are rescheduled. A longer trigger chain advances one
// link per Complete call, as each link actually finishes.
func (e *Engine) Complete(ctx context.Context, milestoneID string, at time.Time) (*types.CompletionResult, error) {
	if at.IsZero() {
		at = e.now().UTC()
	}

	result, err := e.store.CompleteMilestone(ctx, milestoneID, at)
	if err != nil {
		return nil, err
	}

	for _, dep := range result.Rescheduled {
		e.scheduleReminder(ctx, dep)
	}
	e.notifyVendor(ctx, milestoneID)

	slog.Info("milestone completed",
		"component", "schedule",
		"milestone_id", milestoneID,
		"rescheduled", len(result.Rescheduled),
	)
	return result, nil
}

// scheduleReminder creates a fresh J-2 alert for a rescheduled dependent.
// Skipped silently when the date is too close or no recipient resolves.
func (e *Engine) scheduleReminder(ctx context.Context, dep types.Milestone) {
	scheduledFor := types.AddDays(dep.PlannedDate, -2)
	if !scheduledFor.After(e.now().UTC()) {
		return
	}
	if dep.VendorID == "" {
		return
	}

	user, err := e.store.GetVendorUser(ctx, dep.VendorID)
	if err != nil {
		slog.Debug("no reminder recipient for rescheduled milestone",
			"component", "schedule",
			"milestone_id", dep.ID,
			"vendor_id", dep.VendorID,
		)
		return
	}

	vendorName := ""
	if vendor, err := e.store.GetVendor(ctx, dep.VendorID); err == nil {
		vendorName = vendor.Name
	}
	projectName := ""
	if project, err := e.store.GetProject(ctx, dep.ProjectID); err == nil {
		projectName = project.Name
	}

	alert := types.DeadlineAlert{
		ID:           ulid.Make().String(),
		OrgID:        dep.OrgID,
		ProjectID:    dep.ProjectID,
		MilestoneID:  dep.ID,
		UserID:       user.ID,
		Email:        user.Email,
		Type:         types.AlertReminderJ2,
		Channel:      types.ChannelBoth,
		ScheduledFor: scheduledFor,
		Subject:      ReminderSubject(dep.Title, 2),
		Body:         ReminderBody(vendorName, projectName, dep.Title, dep.PlannedDate, 2),
	}
	if err := e.store.CreateAlert(ctx, alert); err != nil {
		slog.Warn("failed to schedule reminder for rescheduled milestone",
			"component", "schedule",
			"milestone_id", dep.ID,
			"error", err,
		)
	}
}

// notifyVendor creates an in-app success notification for the completed
// milestone's vendor user, when one resolves.
func (e *Engine) notifyVendor(ctx context.Context, milestoneID string) {
	milestone, err := e.store.GetMilestone(ctx, milestoneID)
	if err != nil || milestone.VendorID == "" {
		return
	}
	user, err := e.store.GetVendorUser(ctx, milestone.VendorID)
	if err != nil {
		return
	}

	projectName := ""
	if project, err := e.store.GetProject(ctx, milestone.ProjectID); err == nil {
		projectName = project.Name
	}

	notification := types.Notification{
		ID:          ulid.Make().String(),
		OrgID:       milestone.OrgID,
		UserID:      user.ID,
		Title:       "Jalon terminé : " + milestone.Title,
		Description: "Le jalon \"" + milestone.Title + "\" du projet \"" + projectName + "\" est terminé.",
		Type:        "success",
		RelatedKind: "milestone",
		RelatedID:   milestone.ID,
	}
	if err := e.store.CreateNotification(ctx, notification); err != nil {
		slog.Warn("failed to create completion notification",
			"component", "schedule",
			"milestone_id", milestoneID,
			"error", err,
		)
	}
}
