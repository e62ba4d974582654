package types

import "time"

// MilestoneStatus represents the lifecycle state of a delivery milestone.
type MilestoneStatus string

const (
	StatusPending    MilestoneStatus = "pending"
	StatusInProgress MilestoneStatus = "in_progress"
	StatusCompleted  MilestoneStatus = "completed"
	StatusOverdue    MilestoneStatus = "overdue"
)

// Stage identifies a step in the delivery plan of a project.
type Stage string

const (
	StageAuditClient          Stage = "audit_client"
	StageProductionV1         Stage = "production_v1"
	StageClientImplementation Stage = "client_implementation"
	StageClientFeedback       Stage = "client_feedback"
	StageProductionV2         Stage = "production_v2"
	StageFinalVersion         Stage = "final_version"
)

// EventType classifies a calendar event.
type EventType string

const (
	EventMeeting          EventType = "meeting"
	EventDeadlineInternal EventType = "deadline_internal"
	EventDeadlineClient   EventType = "deadline_client"
	EventOther            EventType = "other"
)

// EventColor is the semantic display color of a calendar event.
type EventColor string

const (
	ColorBlue   EventColor = "blue"
	ColorYellow EventColor = "yellow"
	ColorRed    EventColor = "red"
	ColorGreen  EventColor = "green"

	// ColorDone is applied to events whose milestone completed.
	ColorDone = ColorGreen
	// ColorOverdue is applied to events whose milestone drifted past its date.
	ColorOverdue = ColorRed
)

// Role is the fine-grained role assigned to a user account.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDelivery     Role = "delivery"
	RoleSales        Role = "sales"
	RoleFinance      Role = "finance"
	RoleClientAdmin  Role = "client_admin"
	RoleClientMember Role = "client_member"
	RoleVendor       Role = "vendor"
)

// VisibilityTag is the coarse visibility scope attached to calendar events.
type VisibilityTag string

const (
	VisibilityAdmin  VisibilityTag = "admin"
	VisibilityClient VisibilityTag = "client"
	VisibilityVendor VisibilityTag = "vendor"
)

// AlertType classifies a deadline alert.
type AlertType string

const (
	AlertReminderJ2 AlertType = "reminder_j2"
	AlertReminderJ1 AlertType = "reminder_j1"
	AlertOverdue    AlertType = "overdue"
)

// AlertChannel selects the delivery channels of an alert.
type AlertChannel string

const (
	ChannelEmail AlertChannel = "email"
	ChannelInApp AlertChannel = "in_app"
	ChannelBoth  AlertChannel = "both"
)

// IncludesEmail reports whether the channel requires an email dispatch.
func (c AlertChannel) IncludesEmail() bool {
	return c == ChannelEmail || c == ChannelBoth
}

// IncludesInApp reports whether the channel requires an in-app notification.
func (c AlertChannel) IncludesInApp() bool {
	return c == ChannelInApp || c == ChannelBoth
}

// Milestone is one step in a project's delivery plan.
//
// A milestone is either offset-based (its planned date was computed from the
// project start date) or trigger-based: TriggerMilestoneID names the milestone
// whose completion recomputes this one's planned date, DaysAfterTrigger is the
// offset applied to the trigger's actual completion date. Until the trigger
// fires, a trigger-based milestone carries a placeholder planned date.
type Milestone struct {
	ID          string          `json:"id"`
	OrgID       string          `json:"org_id"`
	ProjectID   string          `json:"project_id"`
	Stage       Stage           `json:"stage"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	PlannedDate time.Time       `json:"planned_date"`
	ActualDate  *time.Time      `json:"actual_date,omitempty"`
	Status      MilestoneStatus `json:"status"`
	VendorID    string          `json:"vendor_id,omitempty"`

	VisibleToClient bool `json:"visible_to_client"`
	VisibleToVendor bool `json:"visible_to_vendor"`

	TriggerMilestoneID string `json:"trigger_milestone_id,omitempty"`
	DaysAfterTrigger   int    `json:"days_after_trigger,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CalendarEvent is a date-ranged, role-scoped display artifact. Events
// mirroring a milestone carry its ID as a back-reference; ad-hoc events have
// no milestone.
type CalendarEvent struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	ProjectID   string    `json:"project_id"`
	MilestoneID string    `json:"milestone_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	AllDay      bool      `json:"all_day"`

	Type  EventType  `json:"type"`
	Color EventColor `json:"color"`

	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// VisibleToRoles defaults to admin-only when empty.
	VisibleToRoles []VisibilityTag `json:"visible_to_roles,omitempty"`
	VendorID       string          `json:"vendor_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VisibleTo reports whether the event is visible to the given tag.
// Events without an explicit visibility list are admin-only.
func (e *CalendarEvent) VisibleTo(tag VisibilityTag) bool {
	roles := e.VisibleToRoles
	if len(roles) == 0 {
		roles = []VisibilityTag{VisibilityAdmin}
	}
	for _, r := range roles {
		if r == tag {
			return true
		}
	}
	return false
}

// DeadlineAlert is a scheduled, at-most-once notification tied to a milestone
// deadline. SentAt is set only after every channel required by Channel
// succeeded; a channel failure sets FailedAt/FailureReason instead and the
// alert is not retried.
type DeadlineAlert struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	ProjectID   string `json:"project_id"`
	MilestoneID string `json:"milestone_id,omitempty"`

	UserID string `json:"user_id"`
	Email  string `json:"email"`

	Type         AlertType    `json:"type"`
	Channel      AlertChannel `json:"channel"`
	ScheduledFor time.Time    `json:"scheduled_for"`
	Subject      string       `json:"subject"`
	Body         string       `json:"body"`

	SentAt        *time.Time `json:"sent_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Notification is an in-app notification row consumed by the UI layer.
type Notification struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// Type is one of "success", "warning", "info".
	Type string `json:"type"`
	Link string `json:"link,omitempty"`

	RelatedKind string `json:"related_kind,omitempty"`
	RelatedID   string `json:"related_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Project is the owning aggregate of milestones and calendar events.
type Project struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	Name       string    `json:"name"`
	ClientName string    `json:"client_name,omitempty"`
	StartDate  time.Time `json:"start_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// Vendor is an external contractor delivering project work. A vendor may be
// linked to a user account for notification purposes.
type Vendor struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a referenced collaborator; accounts are managed outside this
// service.
type User struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// MilestoneChain is the full set of rows generated for one project's delivery
// plan. All of it is persisted in a single transaction or not at all.
type MilestoneChain struct {
	Milestones []Milestone
	Events     []CalendarEvent
	Alerts     []DeadlineAlert
}

// CompletionResult reports the outcome of completing a milestone.
type CompletionResult struct {
	MilestoneID string `json:"milestone_id"`
	// Rescheduled holds the direct dependents whose planned dates were
	// recomputed, with their post-update state.
	Rescheduled []Milestone `json:"rescheduled,omitempty"`
}

// TriggeredIDs returns the IDs of the rescheduled dependents.
func (r *CompletionResult) TriggeredIDs() []string {
	ids := make([]string, 0, len(r.Rescheduled))
	for _, m := range r.Rescheduled {
		ids = append(ids, m.ID)
	}
	return ids
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	MilestoneCount int64  `json:"milestone_count"`
}
