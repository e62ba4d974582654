package calendar

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jalonhq/jalon/internal/store"
	"github.com/jalonhq/jalon/internal/types"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "jalon.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedEvents(t *testing.T, db *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	if err := db.CreateProject(ctx, types.Project{
		ID:        "proj-1",
		OrgID:     "org-1",
		Name:      "Site vitrine",
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatal(err)
	}

	day := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }
	events := []types.CalendarEvent{
		{
			ID: "ev-client", OrgID: "org-1", ProjectID: "proj-1",
			Title: "Audit client", StartAt: day(4), EndAt: types.EndOfDay(day(4)), AllDay: true,
			Type: types.EventDeadlineClient, Color: types.ColorBlue,
			VisibleToRoles: []types.VisibilityTag{types.VisibilityAdmin, types.VisibilityClient},
		},
		{
			ID: "ev-vendor", OrgID: "org-1", ProjectID: "proj-1",
			Title: "Production V1 (Interne)", StartAt: day(11), EndAt: types.EndOfDay(day(11)), AllDay: true,
			Type: types.EventDeadlineInternal, Color: types.ColorYellow,
			VisibleToRoles: []types.VisibilityTag{types.VisibilityAdmin, types.VisibilityVendor},
			VendorID:       "vendor-1",
		},
		{
			ID: "ev-admin-only", OrgID: "org-1", ProjectID: "proj-1",
			Title: "Point interne", StartAt: day(8), EndAt: types.EndOfDay(day(8)), AllDay: true,
			Type: types.EventMeeting, Color: types.ColorBlue,
		},
		{
			ID: "ev-shared", OrgID: "org-1", ProjectID: "proj-1",
			Title: "Réunion de lancement", StartAt: day(2), EndAt: types.EndOfDay(day(2)), AllDay: true,
			Type: types.EventMeeting, Color: types.ColorBlue,
			VisibleToRoles: []types.VisibilityTag{types.VisibilityAdmin, types.VisibilityClient, types.VisibilityVendor},
		},
	}
	for _, ev := range events {
		if err := db.CreateEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
}

func janWindow() (time.Time, time.Time) {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
}

func TestVisibilityFor(t *testing.T) {
	cases := []struct {
		role types.Role
		want types.VisibilityTag
	}{
		{types.RoleAdmin, types.VisibilityAdmin},
		{types.RoleDelivery, types.VisibilityAdmin},
		{types.RoleSales, types.VisibilityAdmin},
		{types.RoleFinance, types.VisibilityAdmin},
		{types.RoleClientAdmin, types.VisibilityClient},
		{types.RoleClientMember, types.VisibilityClient},
		{types.RoleVendor, types.VisibilityVendor},
	}
	for _, tc := range cases {
		got, err := VisibilityFor(tc.role)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.role, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.role, got, tc.want)
		}
	}

	if _, err := VisibilityFor(types.Role("intern")); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestService_Events_ClientFiltering(t *testing.T) {
	db := newTestStore(t)
	seedEvents(t, db)
	svc := NewService(db)

	start, end := janWindow()
	events, err := svc.Events(context.Background(), Request{
		OrgID: "org-1", ProjectID: "proj-1", Start: start, End: end,
		Role: types.RoleClientMember,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Only the two client-visible events, ascending by start.
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "ev-shared" || events[1].ID != "ev-client" {
		t.Errorf("unexpected order: %s, %s", events[0].ID, events[1].ID)
	}
}

func TestService_Events_AdminSeesAll(t *testing.T) {
	db := newTestStore(t)
	seedEvents(t, db)
	svc := NewService(db)

	start, end := janWindow()
	events, err := svc.Events(context.Background(), Request{
		OrgID: "org-1", ProjectID: "proj-1", Start: start, End: end,
		Role: types.RoleDelivery,
	})
	if err != nil {
		t.Fatal(err)
	}
	// Includes the event with no visibility list, which defaults to admin.
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
}

func TestService_Events_VendorScoping(t *testing.T) {
	db := newTestStore(t)
	seedEvents(t, db)
	svc := NewService(db)
	start, end := janWindow()

	// The assigned vendor sees its own event plus unassigned ones.
	events, err := svc.Events(context.Background(), Request{
		OrgID: "org-1", ProjectID: "proj-1", Start: start, End: end,
		Role: types.RoleVendor, VendorID: "vendor-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for vendor-1, got %d", len(events))
	}

	// Another vendor loses the assigned event but keeps unassigned ones.
	events, err = svc.Events(context.Background(), Request{
		OrgID: "org-1", ProjectID: "proj-1", Start: start, End: end,
		Role: types.RoleVendor, VendorID: "vendor-2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ID != "ev-shared" {
		t.Fatalf("expected only ev-shared for vendor-2, got %+v", events)
	}
}

func TestService_Events_CompletedColorOverride(t *testing.T) {
	db := newTestStore(t)
	seedEvents(t, db)
	ctx := context.Background()

	done := time.Date(2025, 1, 4, 15, 0, 0, 0, time.UTC)
	if err := db.CreateEvent(ctx, types.CalendarEvent{
		ID: "ev-done", OrgID: "org-1", ProjectID: "proj-1",
		Title: "Audit terminé", StartAt: done, EndAt: types.EndOfDay(done),
		Type: types.EventDeadlineClient, Color: types.ColorBlue,
		Completed: true, CompletedAt: &done,
		VisibleToRoles: []types.VisibilityTag{types.VisibilityAdmin},
	}); err != nil {
		t.Fatal(err)
	}

	svc := NewService(db)
	start, end := janWindow()
	events, err := svc.Events(ctx, Request{
		OrgID: "org-1", ProjectID: "proj-1", Start: start, End: end,
		Role: types.RoleAdmin,
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, ev := range events {
		if ev.ID == "ev-done" && ev.Color != types.ColorDone {
			t.Errorf("completed event color %s, want %s", ev.Color, types.ColorDone)
		}
	}
}

func TestService_Events_UnknownRole(t *testing.T) {
	db := newTestStore(t)
	svc := NewService(db)
	start, end := janWindow()

	_, err := svc.Events(context.Background(), Request{
		OrgID: "org-1", Start: start, End: end, Role: types.Role("intern"),
	})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestFormatTitle(t *testing.T) {
	cases := []struct {
		title string
		tag   types.VisibilityTag
		want  string
	}{
		{"Production V1 (Interne)", types.VisibilityClient, "Production V1"},
		{"Production V2 (Correction)", types.VisibilityClient, "Production V2"},
		{"Production V1 (Interne)", types.VisibilityAdmin, "Production V1 (Interne)"},
		{"Production V1 (Interne)", types.VisibilityVendor, "Production V1 (Interne)"},
		{"Audit client", types.VisibilityClient, "Audit client"},
	}
	for _, tc := range cases {
		if got := FormatTitle(tc.title, tc.tag); got != tc.want {
			t.Errorf("FormatTitle(%q, %s) = %q, want %q", tc.title, tc.tag, got, tc.want)
		}
	}
}
