package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jalonhq/jalon/internal/store"
	"github.com/jalonhq/jalon/internal/types"
)

// Generator builds and persists a project's full milestone chain in one
// transaction.
type Generator struct {
	store        store.Store
	feedbackDays int
	now          func() time.Time
}

// NewGenerator creates a generator. daysToClientFeedback positions the client
// feedback stage and the placeholder dates of trigger-based stages.
func NewGenerator(s store.Store, daysToClientFeedback int) *Generator {
	return &Generator{
		store:        s,
		feedbackDays: daysToClientFeedback,
		now:          time.Now,
	}
}

// Generate creates the default milestone chain for a project, anchored on the
// project's start date. vendorID is optional; when set, vendor-assigned stages
// are attached to it and reminder alerts are addressed to the vendor's linked
// user. feedbackDays overrides the configured client feedback offset when
// positive. Calling Generate twice for the same project creates two chains;
// callers must guard against that.
func (g *Generator) Generate(ctx context.Context, projectID, vendorID string, feedbackDays int) (types.MilestoneChain, error) {
	if feedbackDays <= 0 {
		feedbackDays = g.feedbackDays
	}
	project, err := g.store.GetProject(ctx, projectID)
	if err != nil {
		return types.MilestoneChain{}, fmt.Errorf("load project: %w", err)
	}

	var vendor *types.Vendor
	var vendorUser *types.User
	if vendorID != "" {
		vendor, err = g.store.GetVendor(ctx, vendorID)
		if err != nil {
			return types.MilestoneChain{}, fmt.Errorf("load vendor: %w", err)
		}
		// Alerts are best-effort: a vendor without a linked user account
		// simply gets no reminders.
		vendorUser, err = g.store.GetVendorUser(ctx, vendorID)
		if err != nil {
			slog.Debug("vendor has no linked user, skipping reminder alerts",
				"component", "schedule",
				"vendor_id", vendorID,
			)
			vendorUser = nil
		}
	}

	chain := BuildChain(*project, vendor, vendorUser, DefaultTemplate(feedbackDays), feedbackDays, g.now().UTC())
	if err := g.store.CreateMilestoneChain(ctx, chain); err != nil {
		return types.MilestoneChain{}, fmt.Errorf("create chain: %w", err)
	}

	slog.Info("milestone chain generated",
		"component", "schedule",
		"project_id", projectID,
		"milestones", len(chain.Milestones),
		"alerts", len(chain.Alerts),
	)
	return chain, nil
}

// BuildChain expands a template into milestones, mirrored calendar events and
// reminder alerts for one project. It is pure: ids are generated up front so
// trigger links can be wired in the same pass, and nothing is persisted.
//
// Offset-based entries are planned at startDate+OffsetDays. Trigger-based
// entries get a placeholder date of startDate+(feedbackDays+DaysAfterTrigger);
// the real date is only known once the trigger completes. J-2 and J-1 alerts
// are scheduled for offset-based entries only, skipped when already in the
// past or when no recipient user resolves.
func BuildChain(project types.Project, vendor *types.Vendor, vendorUser *types.User, tpl []StageTemplate, feedbackDays int, now time.Time) types.MilestoneChain {
	var chain types.MilestoneChain

	stageIDs := make(map[types.Stage]string, len(tpl))
	for _, entry := range tpl {
		stageIDs[entry.Stage] = ulid.Make().String()
	}

	vendorName := ""
	if vendor != nil {
		vendorName = vendor.Name
	}

	for _, entry := range tpl {
		var planned time.Time
		triggerID := ""
		if entry.TriggerStage != "" {
			planned = types.AddDays(project.StartDate, feedbackDays+entry.DaysAfterTrigger)
			triggerID = stageIDs[entry.TriggerStage]
		} else {
			planned = types.AddDays(project.StartDate, entry.OffsetDays)
		}

		vendorID := ""
		if entry.VendorAssigned && vendor != nil {
			vendorID = vendor.ID
		}

		milestone := types.Milestone{
			ID:                 stageIDs[entry.Stage],
			OrgID:              project.OrgID,
			ProjectID:          project.ID,
			Stage:              entry.Stage,
			Title:              entry.Title,
			Description:        entry.Description,
			PlannedDate:        planned,
			Status:             types.StatusPending,
			VendorID:           vendorID,
			VisibleToClient:    entry.VisibleToClient,
			VisibleToVendor:    entry.VisibleToVendor,
			TriggerMilestoneID: triggerID,
			DaysAfterTrigger:   entry.DaysAfterTrigger,
		}
		chain.Milestones = append(chain.Milestones, milestone)

		chain.Events = append(chain.Events, types.CalendarEvent{
			ID:             ulid.Make().String(),
			OrgID:          project.OrgID,
			ProjectID:      project.ID,
			MilestoneID:    milestone.ID,
			Title:          entry.Title,
			Description:    entry.Description,
			StartAt:        types.StartOfDay(planned),
			EndAt:          types.EndOfDay(planned),
			AllDay:         true,
			Type:           entry.EventType,
			Color:          entry.Color,
			VisibleToRoles: entry.Roles,
			VendorID:       vendorID,
		})

		if entry.TriggerStage != "" || vendorUser == nil {
			continue
		}
		for _, reminder := range []struct {
			typ  types.AlertType
			days int
		}{
			{types.AlertReminderJ2, 2},
			{types.AlertReminderJ1, 1},
		} {
			scheduledFor := types.AddDays(planned, -reminder.days)
			if !scheduledFor.After(now) {
				continue
			}
			chain.Alerts = append(chain.Alerts, types.DeadlineAlert{
				ID:           ulid.Make().String(),
				OrgID:        project.OrgID,
				ProjectID:    project.ID,
				MilestoneID:  milestone.ID,
				UserID:       vendorUser.ID,
				Email:        vendorUser.Email,
				Type:         reminder.typ,
				Channel:      types.ChannelBoth,
				ScheduledFor: scheduledFor,
				Subject:      ReminderSubject(entry.Title, reminder.days),
				Body:         ReminderBody(vendorName, project.Name, entry.Title, planned, reminder.days),
			})
		}
	}

	return chain
}
