package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jalonhq/jalon/internal/types"
)

const milestoneColumns = `id, org_id, project_id, stage, title, description,
	planned_date, actual_date, status, vendor_id,
	visible_to_client, visible_to_vendor,
	trigger_milestone_id, days_after_trigger, created_at, updated_at`

const eventColumns = `id, org_id, project_id, milestone_id, title, description,
	start_at, end_at, all_day, event_type, color,
	completed, completed_at, visible_to_roles, vendor_id, created_at, updated_at`

// CreateMilestoneChain persists a project's full milestone chain (milestones,
// mirrored calendar events, and initial alerts) in a single transaction.
// Either every row lands or none do.
func (s *SQLiteStore) CreateMilestoneChain(ctx context.Context, chain types.MilestoneChain) error {
	if len(chain.Milestones) == 0 {
		return ErrEmptyChain
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	for _, m := range chain.Milestones {
		if err := insertMilestoneTx(ctx, tx, m, now); err != nil {
			return fmt.Errorf("insert milestone %s: %w", m.Stage, err)
		}
	}
	for _, ev := range chain.Events {
		if err := insertEventTx(ctx, tx, ev, now); err != nil {
			return fmt.Errorf("insert event for %s: %w", ev.MilestoneID, err)
		}
	}
	for _, a := range chain.Alerts {
		if err := insertAlertTx(ctx, tx, a, now); err != nil {
			return fmt.Errorf("insert alert %s: %w", a.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertMilestoneTx(ctx context.Context, tx *sql.Tx, m types.Milestone, now time.Time) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO milestones (id, org_id, project_id, stage, title, description,
			planned_date, actual_date, status, vendor_id,
			visible_to_client, visible_to_vendor,
			trigger_milestone_id, days_after_trigger, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.OrgID, m.ProjectID, string(m.Stage), m.Title, m.Description,
		fmtTime(m.PlannedDate), fmtTimePtr(m.ActualDate), string(m.Status), nullableString(m.VendorID),
		m.VisibleToClient, m.VisibleToVendor,
		nullableString(m.TriggerMilestoneID), m.DaysAfterTrigger, fmtTime(createdAt), fmtTime(createdAt))
	return err
}

func insertEventTx(ctx context.Context, tx *sql.Tx, ev types.CalendarEvent, now time.Time) error {
	roles, err := marshalRoles(ev.VisibleToRoles)
	if err != nil {
		return err
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO calendar_events (id, org_id, project_id, milestone_id, title, description,
			start_at, end_at, all_day, event_type, color,
			completed, completed_at, visible_to_roles, vendor_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.OrgID, ev.ProjectID, nullableString(ev.MilestoneID), ev.Title, ev.Description,
		fmtTime(ev.StartAt), fmtTime(ev.EndAt), ev.AllDay, string(ev.Type), string(ev.Color),
		ev.Completed, fmtTimePtr(ev.CompletedAt), roles, nullableString(ev.VendorID),
		fmtTime(createdAt), fmtTime(createdAt))
	return err
}

// GetMilestone returns the milestone with the given id.
func (s *SQLiteStore) GetMilestone(ctx context.Context, id string) (*types.Milestone, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+milestoneColumns+" FROM milestones WHERE id = ?", id)
	m, err := scanMilestone(row)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListProjectMilestones returns all milestones of a project ordered by
// planned date.
func (s *SQLiteStore) ListProjectMilestones(ctx context.Context, projectID string) ([]types.Milestone, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+milestoneColumns+" FROM milestones WHERE project_id = ? ORDER BY planned_date ASC, id ASC",
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []types.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *m)
	}
	return milestones, rows.Err()
}

// CompleteMilestone marks a milestone completed and cascades to its direct
// dependents in one transaction:
//
//  1. the milestone gets status=completed and actual_date=at
//  2. its calendar event is completed and recolored to the done color
//  3. every dependent (trigger_milestone_id = id) gets a recomputed planned
//     date `at + days_after_trigger` and its status reset to pending, even
//     when it had drifted to overdue from a stale placeholder date
//  4. dependent calendar events move to the recomputed date
//
// Only direct dependents are rescheduled; a longer trigger chain advances one
// link per completion, which matches delivery semantics.
func (s *SQLiteStore) CompleteMilestone(ctx context.Context, id string, at time.Time) (*types.CompletionResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Existence check; completing an already-completed or overdue milestone
	// is allowed, status is not inspected.
	row := tx.QueryRowContext(ctx,
		"SELECT "+milestoneColumns+" FROM milestones WHERE id = ?", id)
	if _, err := scanMilestone(row); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE milestones SET status = ?, actual_date = ?, updated_at = ? WHERE id = ?
	`, string(types.StatusCompleted), fmtTime(at), fmtTime(now), id)
	if err != nil {
		return nil, fmt.Errorf("update milestone: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE calendar_events SET completed = 1, completed_at = ?, color = ?, updated_at = ?
		WHERE milestone_id = ?
	`, fmtTime(at), string(types.ColorDone), fmtTime(now), id)
	if err != nil {
		return nil, fmt.Errorf("update calendar event: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT "+milestoneColumns+" FROM milestones WHERE trigger_milestone_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("select dependents: %w", err)
	}
	var dependents []types.Milestone
	for rows.Next() {
		dep, err := scanMilestone(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		dependents = append(dependents, *dep)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rescheduled := make([]types.Milestone, 0, len(dependents))
	for _, dep := range dependents {
		newDate := types.AddDays(at, dep.DaysAfterTrigger)

		_, err = tx.ExecContext(ctx, `
			UPDATE milestones SET planned_date = ?, status = ?, updated_at = ? WHERE id = ?
		`, fmtTime(newDate), string(types.StatusPending), fmtTime(now), dep.ID)
		if err != nil {
			return nil, fmt.Errorf("reschedule dependent %s: %w", dep.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE calendar_events SET start_at = ?, end_at = ?, updated_at = ?
			WHERE milestone_id = ?
		`, fmtTime(types.StartOfDay(newDate)), fmtTime(types.EndOfDay(newDate)), fmtTime(now), dep.ID)
		if err != nil {
			return nil, fmt.Errorf("move dependent event %s: %w", dep.ID, err)
		}

		dep.PlannedDate = newDate
		dep.Status = types.StatusPending
		dep.UpdatedAt = now
		rescheduled = append(rescheduled, dep)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &types.CompletionResult{MilestoneID: id, Rescheduled: rescheduled}, nil
}

// ListOverduePending returns milestones still pending whose planned date has
// passed.
func (s *SQLiteStore) ListOverduePending(ctx context.Context, now time.Time) ([]types.Milestone, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+milestoneColumns+` FROM milestones
		WHERE status = ? AND planned_date <= ?
		ORDER BY planned_date ASC`,
		string(types.StatusPending), fmtTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []types.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *m)
	}
	return milestones, rows.Err()
}

// MarkMilestoneOverdue flips a milestone to overdue and recolors its calendar
// event in one transaction.
func (s *SQLiteStore) MarkMilestoneOverdue(ctx context.Context, id string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE milestones SET status = ?, updated_at = ? WHERE id = ?
	`, string(types.StatusOverdue), fmtTime(now), id)
	if err != nil {
		return fmt.Errorf("update milestone: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE calendar_events SET color = ?, updated_at = ? WHERE milestone_id = ?
	`, string(types.ColorOverdue), fmtTime(now), id)
	if err != nil {
		return fmt.Errorf("update calendar event: %w", err)
	}

	return tx.Commit()
}

// CreateEvent inserts a single (ad-hoc) calendar event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, ev types.CalendarEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertEventTx(ctx, tx, ev, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// GetMilestoneEvent returns the calendar event mirroring a milestone.
func (s *SQLiteStore) GetMilestoneEvent(ctx context.Context, milestoneID string) (*types.CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM calendar_events WHERE milestone_id = ?", milestoneID)
	return scanEvent(row)
}

// ListEvents returns events in the query window ordered by start time.
func (s *SQLiteStore) ListEvents(ctx context.Context, q EventQuery) ([]types.CalendarEvent, error) {
	query := "SELECT " + eventColumns + ` FROM calendar_events
		WHERE org_id = ? AND start_at <= ? AND end_at >= ?`
	args := []any{q.OrgID, fmtTime(q.End), fmtTime(q.Start)}
	if q.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, q.ProjectID)
	}
	query += " ORDER BY start_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []types.CalendarEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func scanMilestone(row rowScanner) (*types.Milestone, error) {
	var m types.Milestone
	var stage, status, plannedDate, createdAt, updatedAt string
	var actualDate, vendorID, triggerID sql.NullString

	err := row.Scan(&m.ID, &m.OrgID, &m.ProjectID, &stage, &m.Title, &m.Description,
		&plannedDate, &actualDate, &status, &vendorID,
		&m.VisibleToClient, &m.VisibleToVendor,
		&triggerID, &m.DaysAfterTrigger, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	m.Stage = types.Stage(stage)
	m.Status = types.MilestoneStatus(status)
	m.VendorID = vendorID.String
	m.TriggerMilestoneID = triggerID.String

	if m.PlannedDate, err = parseTime(plannedDate); err != nil {
		return nil, err
	}
	if m.ActualDate, err = parseTimePtr(actualDate); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanEvent(row rowScanner) (*types.CalendarEvent, error) {
	var ev types.CalendarEvent
	var startAt, endAt, eventType, color, roles, createdAt, updatedAt string
	var milestoneID, vendorID, completedAt sql.NullString

	err := row.Scan(&ev.ID, &ev.OrgID, &ev.ProjectID, &milestoneID, &ev.Title, &ev.Description,
		&startAt, &endAt, &ev.AllDay, &eventType, &color,
		&ev.Completed, &completedAt, &roles, &vendorID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	ev.MilestoneID = milestoneID.String
	ev.VendorID = vendorID.String
	ev.Type = types.EventType(eventType)
	ev.Color = types.EventColor(color)

	if ev.StartAt, err = parseTime(startAt); err != nil {
		return nil, err
	}
	if ev.EndAt, err = parseTime(endAt); err != nil {
		return nil, err
	}
	if ev.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	if ev.VisibleToRoles, err = unmarshalRoles(roles); err != nil {
		return nil, err
	}
	if ev.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if ev.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &ev, nil
}
