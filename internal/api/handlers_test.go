package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jalonhq/jalon/internal/alerts"
	"github.com/jalonhq/jalon/internal/calendar"
	"github.com/jalonhq/jalon/internal/email"
	"github.com/jalonhq/jalon/internal/schedule"
	"github.com/jalonhq/jalon/internal/store"
	"github.com/jalonhq/jalon/internal/types"
)

const testAPIKey = "test-api-key"

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "jalon.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	handler := NewHandler(
		db,
		schedule.NewGenerator(db, 21),
		schedule.NewEngine(db),
		calendar.NewService(db),
		alerts.NewRunner(db, &email.NoopSender{}, 100),
		testAPIKey,
		"test",
	)
	srv := httptest.NewServer(NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv, db
}

func seedProject(t *testing.T, db *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	if err := db.CreateUser(ctx, types.User{
		ID: "user-1", OrgID: "org-1", Email: "vendor@example.com", Name: "Vendor One", Role: types.RoleVendor,
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateVendor(ctx, types.Vendor{
		ID: "vendor-1", OrgID: "org-1", Name: "Atelier One", UserID: "user-1",
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateProject(ctx, types.Project{
		ID: "proj-1", OrgID: "org-1", Name: "Site vitrine", ClientName: "Client SARL",
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatal(err)
	}
}

func doRequest(t *testing.T, method, url string, body []byte, authed bool, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth_NoAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/health", nil, false, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var health types.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" || health.Version != "test" {
		t.Errorf("unexpected health %+v", health)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/jobs/deadline-alerts", nil, false, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type %q", ct)
	}

	var p Problem
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Status != http.StatusUnauthorized {
		t.Errorf("problem status %d", p.Status)
	}
}

func TestGenerateSchedule(t *testing.T) {
	srv, db := newTestServer(t)
	seedProject(t, db)

	body := []byte(`{"vendor_id":"vendor-1"}`)
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/projects/proj-1/schedule", body, true, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d, want 201", resp.StatusCode)
	}

	var generated generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		t.Fatal(err)
	}
	if len(generated.Milestones) != 6 {
		t.Errorf("milestones %d, want 6", len(generated.Milestones))
	}
	if generated.Events != 6 {
		t.Errorf("events %d, want 6", generated.Events)
	}

	stored, err := db.ListProjectMilestones(context.Background(), "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 6 {
		t.Errorf("stored milestones %d, want 6", len(stored))
	}
}

func TestGenerateSchedule_ProjectNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/projects/missing/schedule", nil, true, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestGetCalendar_ClientRole(t *testing.T) {
	srv, db := newTestServer(t)
	seedProject(t, db)

	body := []byte(`{"vendor_id":"vendor-1"}`)
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/projects/proj-1/schedule", body, true, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate status %d", resp.StatusCode)
	}

	url := srv.URL + "/api/v1/calendar?start=2025-01-01&end=2025-03-01&role=client_member&project_id=proj-1"
	resp = doRequest(t, http.MethodGet, url, nil, true, map[string]string{"X-Org-ID": "org-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var cal calendarResponse
	if err := json.NewDecoder(resp.Body).Decode(&cal); err != nil {
		t.Fatal(err)
	}
	// Client-visible stages only: audit, implementation, feedback, final.
	if len(cal.Events) != 4 {
		t.Fatalf("events %d, want 4", len(cal.Events))
	}
	for _, ev := range cal.Events {
		if ev.Title == "Production V1 (Interne)" || ev.Title == "Production V2 (Correction)" {
			t.Errorf("internal event leaked to client: %q", ev.Title)
		}
	}
}

func TestGetCalendar_ValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	// Missing org header, bad role, missing dates.
	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/calendar?role=intern", nil, true, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", resp.StatusCode)
	}

	var p ProblemWithErrors
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if len(p.Errors) < 3 {
		t.Errorf("expected several field errors, got %+v", p.Errors)
	}
}

func TestGetCalendar_VendorRequiresVendorID(t *testing.T) {
	srv, _ := newTestServer(t)

	url := srv.URL + "/api/v1/calendar?start=2025-01-01&end=2025-02-01&role=vendor"
	resp := doRequest(t, http.MethodGet, url, nil, true, map[string]string{"X-Org-ID": "org-1"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", resp.StatusCode)
	}
}

func TestCompleteMilestone(t *testing.T) {
	srv, db := newTestServer(t)
	seedProject(t, db)

	body := []byte(`{"vendor_id":"vendor-1"}`)
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/projects/proj-1/schedule", body, true, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate status %d", resp.StatusCode)
	}
	var generated generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		t.Fatal(err)
	}

	var feedbackID string
	for _, m := range generated.Milestones {
		if m.Stage == types.StageClientFeedback {
			feedbackID = m.ID
		}
	}
	if feedbackID == "" {
		t.Fatal("no client_feedback milestone generated")
	}

	body = []byte(`{"completed_at":"2025-01-22T17:00:00Z"}`)
	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/milestones/"+feedbackID+"/complete", body, true, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var result types.CompletionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	// Completing feedback reschedules production_v2.
	if len(result.Rescheduled) != 1 || result.Rescheduled[0].Stage != types.StageProductionV2 {
		t.Fatalf("unexpected rescheduled %+v", result.Rescheduled)
	}
	want := time.Date(2025, 1, 27, 17, 0, 0, 0, time.UTC)
	if !result.Rescheduled[0].PlannedDate.Equal(want) {
		t.Errorf("rescheduled planned %v, want %v", result.Rescheduled[0].PlannedDate, want)
	}
}

func TestCompleteMilestone_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/milestones/missing/complete", nil, true, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestCompleteMilestone_BadTimestamp(t *testing.T) {
	srv, _ := newTestServer(t)

	body := []byte(`{"completed_at":"yesterday"}`)
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/milestones/ms-1/complete", body, true, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", resp.StatusCode)
	}
}

func TestRunDeadlineJob(t *testing.T) {
	srv, db := newTestServer(t)
	seedProject(t, db)

	// One milestone already past its planned date.
	past := time.Now().UTC().AddDate(0, 0, -2)
	chain := types.MilestoneChain{
		Milestones: []types.Milestone{{
			ID: "ms-late", OrgID: "org-1", ProjectID: "proj-1",
			Stage: types.StageAuditClient, Title: "Audit client",
			PlannedDate: past, Status: types.StatusPending, VendorID: "vendor-1",
		}},
		Events: []types.CalendarEvent{{
			ID: "ev-late", OrgID: "org-1", ProjectID: "proj-1", MilestoneID: "ms-late",
			Title: "Audit client", StartAt: types.StartOfDay(past), EndAt: types.EndOfDay(past),
			AllDay: true, Type: types.EventDeadlineClient, Color: types.ColorBlue,
		}},
	}
	if err := db.CreateMilestoneChain(context.Background(), chain); err != nil {
		t.Fatal(err)
	}

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/jobs/deadline-alerts", nil, true, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var report alerts.RunReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Overdue.Detected != 1 || report.Overdue.Updated != 1 {
		t.Errorf("overdue report %+v", report.Overdue)
	}
	if report.ExecutedAt.IsZero() {
		t.Error("executed_at not set")
	}
}
