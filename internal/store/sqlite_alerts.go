package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jalonhq/jalon/internal/types"
)

const alertColumns = `id, org_id, project_id, milestone_id, user_id, email,
	alert_type, channel, scheduled_for, subject, body,
	sent_at, failed_at, failure_reason, created_at`

// CreateAlert inserts a deadline alert row.
func (s *SQLiteStore) CreateAlert(ctx context.Context, a types.DeadlineAlert) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertAlertTx(ctx, tx, a, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func insertAlertTx(ctx context.Context, tx *sql.Tx, a types.DeadlineAlert, now time.Time) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO deadline_alerts (id, org_id, project_id, milestone_id, user_id, email,
			alert_type, channel, scheduled_for, subject, body,
			sent_at, failed_at, failure_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.OrgID, a.ProjectID, nullableString(a.MilestoneID), a.UserID, a.Email,
		string(a.Type), string(a.Channel), fmtTime(a.ScheduledFor), a.Subject, a.Body,
		fmtTimePtr(a.SentAt), fmtTimePtr(a.FailedAt), a.FailureReason, fmtTime(createdAt))
	return err
}

// GetAlert returns the alert with the given id.
func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*types.DeadlineAlert, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+alertColumns+" FROM deadline_alerts WHERE id = ?", id)
	return scanAlert(row)
}

// ListDueAlerts returns up to limit alerts that are due and still pending:
// scheduled_for <= now, never sent, never failed. The limit bounds per-run
// work for the alert runner.
func (s *SQLiteStore) ListDueAlerts(ctx context.Context, now time.Time, limit int) ([]types.DeadlineAlert, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+alertColumns+` FROM deadline_alerts
		WHERE scheduled_for <= ? AND sent_at IS NULL AND failed_at IS NULL
		ORDER BY scheduled_for ASC
		LIMIT ?`,
		fmtTime(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []types.DeadlineAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// MarkAlertSent records a successful dispatch on all required channels.
func (s *SQLiteStore) MarkAlertSent(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deadline_alerts SET sent_at = ? WHERE id = ? AND sent_at IS NULL AND failed_at IS NULL
	`, fmtTime(at), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAlertFailed records a terminal dispatch failure. Failed alerts are not
// retried automatically.
func (s *SQLiteStore) MarkAlertFailed(ctx context.Context, id string, at time.Time, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deadline_alerts SET failed_at = ?, failure_reason = ? WHERE id = ? AND sent_at IS NULL AND failed_at IS NULL
	`, fmtTime(at), reason, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// HasOverdueAlert reports whether an overdue-type alert already exists for the
// milestone. Checked before creating one; at most one should exist.
func (s *SQLiteStore) HasOverdueAlert(ctx context.Context, milestoneID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM deadline_alerts WHERE milestone_id = ? AND alert_type = ?
	`, milestoneID, string(types.AlertOverdue)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanAlert(row rowScanner) (*types.DeadlineAlert, error) {
	var a types.DeadlineAlert
	var alertType, channel, scheduledFor, createdAt string
	var milestoneID, sentAt, failedAt sql.NullString

	err := row.Scan(&a.ID, &a.OrgID, &a.ProjectID, &milestoneID, &a.UserID, &a.Email,
		&alertType, &channel, &scheduledFor, &a.Subject, &a.Body,
		&sentAt, &failedAt, &a.FailureReason, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	a.MilestoneID = milestoneID.String
	a.Type = types.AlertType(alertType)
	a.Channel = types.AlertChannel(channel)

	if a.ScheduledFor, err = parseTime(scheduledFor); err != nil {
		return nil, err
	}
	if a.SentAt, err = parseTimePtr(sentAt); err != nil {
		return nil, err
	}
	if a.FailedAt, err = parseTimePtr(failedAt); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}
