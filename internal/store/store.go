package store

import (
	"context"
	"time"

	"github.com/jalonhq/jalon/internal/types"
)

// EventQuery selects calendar events for an org in a date window.
// ProjectID narrows the query to one project when non-empty.
type EventQuery struct {
	OrgID     string
	ProjectID string
	Start     time.Time
	End       time.Time
}

// Store defines the interface contract for all schedule storage operations.
type Store interface {
	// Projects and people. These records are owned by the surrounding CRM;
	// the scheduler only creates them in tests/seeding and reads them for
	// alert recipient resolution.
	CreateProject(ctx context.Context, p types.Project) error
	GetProject(ctx context.Context, id string) (*types.Project, error)
	CreateUser(ctx context.Context, u types.User) error
	GetUser(ctx context.Context, id string) (*types.User, error)
	CreateVendor(ctx context.Context, v types.Vendor) error
	GetVendor(ctx context.Context, id string) (*types.Vendor, error)
	GetVendorUser(ctx context.Context, vendorID string) (*types.User, error)

	// Milestones.
	CreateMilestoneChain(ctx context.Context, chain types.MilestoneChain) error
	GetMilestone(ctx context.Context, id string) (*types.Milestone, error)
	ListProjectMilestones(ctx context.Context, projectID string) ([]types.Milestone, error)
	CompleteMilestone(ctx context.Context, id string, at time.Time) (*types.CompletionResult, error)
	ListOverduePending(ctx context.Context, now time.Time) ([]types.Milestone, error)
	MarkMilestoneOverdue(ctx context.Context, id string, now time.Time) error

	// Calendar events.
	CreateEvent(ctx context.Context, ev types.CalendarEvent) error
	GetMilestoneEvent(ctx context.Context, milestoneID string) (*types.CalendarEvent, error)
	ListEvents(ctx context.Context, q EventQuery) ([]types.CalendarEvent, error)

	// Deadline alerts.
	CreateAlert(ctx context.Context, a types.DeadlineAlert) error
	GetAlert(ctx context.Context, id string) (*types.DeadlineAlert, error)
	ListDueAlerts(ctx context.Context, now time.Time, limit int) ([]types.DeadlineAlert, error)
	MarkAlertSent(ctx context.Context, id string, at time.Time) error
	MarkAlertFailed(ctx context.Context, id string, at time.Time, reason string) error
	HasOverdueAlert(ctx context.Context, milestoneID string) (bool, error)

	// In-app notifications (insert-only; read by the UI layer).
	CreateNotification(ctx context.Context, n types.Notification) error

	// Ops.
	CountMilestones(ctx context.Context) (int64, error)
	Snapshot(ctx context.Context, dir string) (string, error)
	Close() error
}
