package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jalonhq/jalon/internal/types"
)

// testChain builds a two-milestone chain: an offset-based audit milestone and
// a feedback milestone rescheduled by the audit's completion (4 days after).
func testChain(project types.Project, vendor types.Vendor) types.MilestoneChain {
	audit := types.Milestone{
		ID:              "ms-audit",
		OrgID:           project.OrgID,
		ProjectID:       project.ID,
		Stage:           types.StageAuditClient,
		Title:           "Audit client",
		PlannedDate:     time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC),
		Status:          types.StatusPending,
		VendorID:        vendor.ID,
		VisibleToClient: true,
	}
	feedback := types.Milestone{
		ID:                 "ms-feedback",
		OrgID:              project.OrgID,
		ProjectID:          project.ID,
		Stage:              types.StageClientFeedback,
		Title:              "Retours client",
		PlannedDate:        time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC), // placeholder
		Status:             types.StatusPending,
		VendorID:           vendor.ID,
		VisibleToClient:    true,
		TriggerMilestoneID: audit.ID,
		DaysAfterTrigger:   4,
	}

	events := []types.CalendarEvent{
		{
			ID: "ev-audit", OrgID: project.OrgID, ProjectID: project.ID, MilestoneID: audit.ID,
			Title: audit.Title, StartAt: types.StartOfDay(audit.PlannedDate), EndAt: types.EndOfDay(audit.PlannedDate),
			AllDay: true, Type: types.EventDeadlineClient, Color: types.ColorBlue,
			VisibleToRoles: []types.VisibilityTag{types.VisibilityAdmin, types.VisibilityClient},
			VendorID:       vendor.ID,
		},
		{
			ID: "ev-feedback", OrgID: project.OrgID, ProjectID: project.ID, MilestoneID: feedback.ID,
			Title: feedback.Title, StartAt: types.StartOfDay(feedback.PlannedDate), EndAt: types.EndOfDay(feedback.PlannedDate),
			AllDay: true, Type: types.EventDeadlineClient, Color: types.ColorBlue,
			VisibleToRoles: []types.VisibilityTag{types.VisibilityAdmin, types.VisibilityClient},
			VendorID:       vendor.ID,
		},
	}

	alerts := []types.DeadlineAlert{
		{
			ID: "al-j2", OrgID: project.OrgID, ProjectID: project.ID, MilestoneID: audit.ID,
			UserID: vendor.UserID, Email: "vendor@example.com",
			Type: types.AlertReminderJ2, Channel: types.ChannelBoth,
			ScheduledFor: types.AddDays(audit.PlannedDate, -2),
			Subject:      "Rappel J-2", Body: "Échéance dans 2 jours",
		},
		{
			ID: "al-j1", OrgID: project.OrgID, ProjectID: project.ID, MilestoneID: audit.ID,
			UserID: vendor.UserID, Email: "vendor@example.com",
			Type: types.AlertReminderJ1, Channel: types.ChannelBoth,
			ScheduledFor: types.AddDays(audit.PlannedDate, -1),
			Subject:      "Rappel J-1", Body: "Échéance demain",
		},
	}

	return types.MilestoneChain{
		Milestones: []types.Milestone{audit, feedback},
		Events:     events,
		Alerts:     alerts,
	}
}

func TestStore_CreateMilestoneChain(t *testing.T) {
	db := newTestStore(t)
	project, vendor, _ := seedProject(t, db)
	ctx := context.Background()

	if err := db.CreateMilestoneChain(ctx, testChain(project, vendor)); err != nil {
		t.Fatal(err)
	}

	milestones, err := db.ListProjectMilestones(ctx, project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(milestones) != 2 {
		t.Fatalf("expected 2 milestones, got %d", len(milestones))
	}

	ev, err := db.GetMilestoneEvent(ctx, "ms-audit")
	if err != nil {
		t.Fatal(err)
	}
	if !ev.StartAt.Equal(time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected event start %v", ev.StartAt)
	}
	if got := len(ev.VisibleToRoles); got != 2 {
		t.Errorf("expected 2 visibility roles, got %d", got)
	}
}

func TestStore_CreateMilestoneChain_Empty(t *testing.T) {
	db := newTestStore(t)

	err := db.CreateMilestoneChain(context.Background(), types.MilestoneChain{})
	if !errors.Is(err, ErrEmptyChain) {
		t.Errorf("expected ErrEmptyChain, got %v", err)
	}
}

func TestStore_CreateMilestoneChain_RollsBackOnFailure(t *testing.T) {
	db := newTestStore(t)
	project, vendor, _ := seedProject(t, db)
	ctx := context.Background()

	chain := testChain(project, vendor)
	// Duplicate the first milestone's ID onto the last entry so the final
	// insert violates the primary key mid-transaction.
	chain.Milestones[len(chain.Milestones)-1].ID = chain.Milestones[0].ID

	if err := db.CreateMilestoneChain(ctx, chain); err == nil {
		t.Fatal("expected chain creation to fail")
	}

	count, err := db.CountMilestones(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected rollback to leave 0 milestones, got %d", count)
	}

	events, err := db.ListEvents(ctx, EventQuery{
		OrgID: project.OrgID,
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("expected rollback to leave 0 events, got %d", len(events))
	}

	alerts, err := db.ListDueAlerts(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected rollback to leave 0 alerts, got %d", len(alerts))
	}
}

func TestStore_CompleteMilestone_Cascades(t *testing.T) {
	db := newTestStore(t)
	project, vendor, _ := seedProject(t, db)
	ctx := context.Background()

	if err := db.CreateMilestoneChain(ctx, testChain(project, vendor)); err != nil {
		t.Fatal(err)
	}

	completedAt := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	result, err := db.CompleteMilestone(ctx, "ms-audit", completedAt)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Rescheduled) != 1 || result.Rescheduled[0].ID != "ms-feedback" {
		t.Fatalf("expected ms-feedback rescheduled, got %+v", result.Rescheduled)
	}

	audit, err := db.GetMilestone(ctx, "ms-audit")
	if err != nil {
		t.Fatal(err)
	}
	if audit.Status != types.StatusCompleted {
		t.Errorf("expected status completed, got %s", audit.Status)
	}
	if audit.ActualDate == nil || !audit.ActualDate.Equal(completedAt) {
		t.Errorf("expected actual date %v, got %v", completedAt, audit.ActualDate)
	}

	auditEvent, err := db.GetMilestoneEvent(ctx, "ms-audit")
	if err != nil {
		t.Fatal(err)
	}
	if !auditEvent.Completed {
		t.Error("expected audit event to be completed")
	}
	if auditEvent.Color != types.ColorDone {
		t.Errorf("expected done color, got %s", auditEvent.Color)
	}

	// completionDate + daysAfterTrigger = Jan 5 + 4 = Jan 9
	feedback, err := db.GetMilestone(ctx, "ms-feedback")
	if err != nil {
		t.Fatal(err)
	}
	wantDate := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	if !feedback.PlannedDate.Equal(wantDate) {
		t.Errorf("expected planned date %v, got %v", wantDate, feedback.PlannedDate)
	}
	if feedback.Status != types.StatusPending {
		t.Errorf("expected status pending, got %s", feedback.Status)
	}

	feedbackEvent, err := db.GetMilestoneEvent(ctx, "ms-feedback")
	if err != nil {
		t.Fatal(err)
	}
	if !feedbackEvent.StartAt.Equal(types.StartOfDay(wantDate)) {
		t.Errorf("expected event start %v, got %v", types.StartOfDay(wantDate), feedbackEvent.StartAt)
	}
	if !feedbackEvent.EndAt.Equal(types.EndOfDay(wantDate)) {
		t.Errorf("expected event end %v, got %v", types.EndOfDay(wantDate), feedbackEvent.EndAt)
	}
}

func TestStore_CompleteMilestone_ResetsOverdueDependent(t *testing.T) {
	db := newTestStore(t)
	project, vendor, _ := seedProject(t, db)
	ctx := context.Background()

	if err := db.CreateMilestoneChain(ctx, testChain(project, vendor)); err != nil {
		t.Fatal(err)
	}

	// The dependent drifted to overdue on its stale placeholder date.
	if err := db.MarkMilestoneOverdue(ctx, "ms-feedback", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	completedAt := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	if _, err := db.CompleteMilestone(ctx, "ms-audit", completedAt); err != nil {
		t.Fatal(err)
	}

	feedback, err := db.GetMilestone(ctx, "ms-feedback")
	if err != nil {
		t.Fatal(err)
	}
	if feedback.Status != types.StatusPending {
		t.Errorf("expected overdue dependent reset to pending, got %s", feedback.Status)
	}
}

func TestStore_CompleteMilestone_NotFound(t *testing.T) {
	db := newTestStore(t)

	_, err := db.CompleteMilestone(context.Background(), "missing", time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListOverduePending(t *testing.T) {
	db := newTestStore(t)
	project, vendor, _ := seedProject(t, db)
	ctx := context.Background()

	if err := db.CreateMilestoneChain(ctx, testChain(project, vendor)); err != nil {
		t.Fatal(err)
	}

	// Before the audit's planned date nothing is overdue.
	overdue, err := db.ListOverduePending(ctx, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(overdue) != 0 {
		t.Fatalf("expected no overdue milestones, got %d", len(overdue))
	}

	// After Jan 4 the audit milestone is past due.
	overdue, err = db.ListOverduePending(ctx, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(overdue) != 1 || overdue[0].ID != "ms-audit" {
		t.Fatalf("expected ms-audit overdue, got %+v", overdue)
	}
}

func TestStore_MarkMilestoneOverdue(t *testing.T) {
	db := newTestStore(t)
	project, vendor, _ := seedProject(t, db)
	ctx := context.Background()

	if err := db.CreateMilestoneChain(ctx, testChain(project, vendor)); err != nil {
		t.Fatal(err)
	}

	if err := db.MarkMilestoneOverdue(ctx, "ms-audit", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	m, err := db.GetMilestone(ctx, "ms-audit")
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != types.StatusOverdue {
		t.Errorf("expected status overdue, got %s", m.Status)
	}

	ev, err := db.GetMilestoneEvent(ctx, "ms-audit")
	if err != nil {
		t.Fatal(err)
	}
	if ev.Color != types.ColorOverdue {
		t.Errorf("expected overdue color, got %s", ev.Color)
	}

	// Once overdue, it no longer matches the pending predicate.
	overdue, err := db.ListOverduePending(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range overdue {
		if m.ID == "ms-audit" {
			t.Error("already-overdue milestone matched the pending predicate again")
		}
	}
}

func TestStore_ListEvents_WindowAndOrder(t *testing.T) {
	db := newTestStore(t)
	project, vendor, _ := seedProject(t, db)
	ctx := context.Background()

	if err := db.CreateMilestoneChain(ctx, testChain(project, vendor)); err != nil {
		t.Fatal(err)
	}

	events, err := db.ListEvents(ctx, EventQuery{
		OrgID:     project.OrgID,
		ProjectID: project.ID,
		Start:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[0].StartAt.Before(events[1].StartAt) {
		t.Error("events not ordered ascending by start time")
	}

	// A window past all events returns nothing.
	events, err = db.ListEvents(ctx, EventQuery{
		OrgID: project.OrgID,
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events outside window, got %d", len(events))
	}
}
