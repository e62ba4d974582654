package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jalonhq/jalon/internal/alerts"
	"github.com/jalonhq/jalon/internal/calendar"
	"github.com/jalonhq/jalon/internal/schedule"
	"github.com/jalonhq/jalon/internal/store"
	"github.com/jalonhq/jalon/internal/types"
	"github.com/jalonhq/jalon/internal/validation"
)

// Handler implements the API handlers.
type Handler struct {
	store     store.Store
	generator *schedule.Generator
	engine    *schedule.Engine
	calendar  *calendar.Service
	runner    *alerts.Runner
	apiKey    string
	version   string
}

// NewHandler creates a Handler wiring the domain services.
func NewHandler(
	s store.Store,
	generator *schedule.Generator,
	engine *schedule.Engine,
	cal *calendar.Service,
	runner *alerts.Runner,
	apiKey, version string,
) *Handler {
	return &Handler{
		store:     s,
		generator: generator,
		engine:    engine,
		calendar:  cal,
		runner:    runner,
		apiKey:    apiKey,
		version:   version,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountMilestones(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resp := types.HealthResponse{
		Status:         "healthy",
		Version:        h.version,
		MilestoneCount: count,
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetCalendar handles GET /api/v1/calendar. Query parameters: start, end,
// role, and vendor_id (required when role is vendor); project_id optionally
// narrows to one project. The org comes from the X-Org-ID header.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	var c validation.Collector

	orgID := r.Header.Get("X-Org-ID")
	c.Add(validation.ValidateRequired("X-Org-ID", orgID))

	role := r.URL.Query().Get("role")
	c.Add(validation.ValidateRole("role", role))

	start, verr := validation.ParseDate("start", r.URL.Query().Get("start"))
	c.Add(verr)
	end, verr := validation.ParseDate("end", r.URL.Query().Get("end"))
	c.Add(verr)
	if !start.IsZero() && !end.IsZero() {
		c.Add(validation.ValidateDateRange("end", start, end))
	}

	vendorID := r.URL.Query().Get("vendor_id")
	if types.Role(role) == types.RoleVendor {
		c.Add(validation.ValidateRequired("vendor_id", vendorID))
	}

	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	events, err := h.calendar.Events(r.Context(), calendar.Request{
		OrgID:     orgID,
		ProjectID: r.URL.Query().Get("project_id"),
		Start:     start,
		End:       end,
		Role:      types.Role(role),
		VendorID:  vendorID,
	})
	if err != nil {
		slog.Error("calendar query failed", "error", err, "org_id", orgID)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, calendarResponse{Events: events})
}

type calendarResponse struct {
	Events []types.CalendarEvent `json:"events"`
}

type generateRequest struct {
	VendorID string `json:"vendor_id,omitempty"`
	// DaysToClientFeedback overrides the configured feedback offset when
	// positive.
	DaysToClientFeedback int `json:"days_to_client_feedback,omitempty"`
}

type generateResponse struct {
	ProjectID  string            `json:"project_id"`
	Milestones []types.Milestone `json:"milestones"`
	Events     int               `json:"events"`
	Alerts     int               `json:"alerts"`
}

// GenerateSchedule handles POST /api/v1/projects/{projectID}/schedule.
// Creates the full default milestone chain for the project. An empty body is
// accepted and means no vendor assignment.
func (h *Handler) GenerateSchedule(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req generateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
			return
		}
	}

	chain, err := h.generator.Generate(r.Context(), projectID, req.VendorID, req.DaysToClientFeedback)
	if err != nil {
		slog.Error("schedule generation failed", "error", err, "project_id", projectID)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, generateResponse{
		ProjectID:  projectID,
		Milestones: chain.Milestones,
		Events:     len(chain.Events),
		Alerts:     len(chain.Alerts),
	})
}

type completeRequest struct {
	CompletedAt string `json:"completed_at,omitempty"`
}

// CompleteMilestone handles POST /api/v1/milestones/{id}/complete. The body
// may carry an RFC 3339 completed_at; absent means now.
func (h *Handler) CompleteMilestone(w http.ResponseWriter, r *http.Request) {
	milestoneID := chi.URLParam(r, "id")

	var req completeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
			return
		}
	}

	var at time.Time
	if req.CompletedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.CompletedAt)
		if err != nil {
			WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{
				{Field: "completed_at", Message: "must be an RFC 3339 timestamp"},
			})
			return
		}
		at = parsed.UTC()
	}

	result, err := h.engine.Complete(r.Context(), milestoneID, at)
	if err != nil {
		slog.Error("milestone completion failed", "error", err, "milestone_id", milestoneID)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// RunDeadlineJob handles POST /api/v1/jobs/deadline-alerts. Runs one full
// alert pass synchronously and returns the report; used by external cron
// setups instead of the in-process coordinator.
func (h *Handler) RunDeadlineJob(w http.ResponseWriter, r *http.Request) {
	report := h.runner.Run(r.Context())
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
