package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jalonhq/jalon/internal/store"
	"github.com/jalonhq/jalon/internal/types"
)

// Request selects the calendar slice one requester may see. ProjectID narrows
// to one project; empty means org-wide. VendorID identifies the requester's
// vendor and is required when Role maps to the vendor visibility tag.
type Request struct {
	OrgID     string
	ProjectID string
	Start     time.Time
	End       time.Time
	Role      types.Role
	VendorID  string
}

// Service answers role-filtered calendar queries. Read-only.
type Service struct {
	store store.Store
}

// NewService creates a calendar query service.
func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// Events returns the events in the window the requester is allowed to see,
// ascending by start time. Events are returned as display copies: a completed
// event always shows the done color regardless of its stored color, and
// client-facing titles have internal qualifiers stripped.
func (s *Service) Events(ctx context.Context, req Request) ([]types.CalendarEvent, error) {
	tag, err := VisibilityFor(req.Role)
	if err != nil {
		return nil, err
	}

	events, err := s.store.ListEvents(ctx, store.EventQuery{
		OrgID:     req.OrgID,
		ProjectID: req.ProjectID,
		Start:     req.Start,
		End:       req.End,
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	out := make([]types.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if !ev.VisibleTo(tag) {
			continue
		}
		// Vendors only see unassigned events and their own.
		if tag == types.VisibilityVendor && ev.VendorID != "" && ev.VendorID != req.VendorID {
			continue
		}

		if ev.Completed {
			ev.Color = types.ColorDone
		}
		ev.Title = FormatTitle(ev.Title, tag)
		out = append(out, ev)
	}
	return out, nil
}

// internalQualifiers are title annotations meaningful to staff only.
var internalQualifiers = []string{"(Interne)", "(Correction)"}

// FormatTitle adapts an event title to the viewer. Internal qualifiers are
// stripped for clients; staff and vendors see titles as stored.
func FormatTitle(title string, tag types.VisibilityTag) string {
	if tag != types.VisibilityClient {
		return title
	}
	for _, q := range internalQualifiers {
		title = strings.ReplaceAll(title, q, "")
	}
	return strings.Join(strings.Fields(title), " ")
}
