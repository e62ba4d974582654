package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jalonhq/jalon/internal/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore represents the SQLite-backed schedule database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable pragmas for performance and safety
	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	// Run goose migrations
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CountMilestones returns the total number of milestones.
func (s *SQLiteStore) CountMilestones(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM milestones").Scan(&count)
	return count, err
}

// Snapshot writes a consistent copy of the database into dir and returns the
// snapshot path. Uses VACUUM INTO so the copy is compacted and transactionally
// consistent without blocking writers for the full duration.
func (s *SQLiteStore) Snapshot(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("jalon-%s.db", time.Now().UTC().Format("20060102T150405")))

	// VACUUM INTO refuses to overwrite an existing file
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove stale snapshot: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return "", fmt.Errorf("vacuum into snapshot: %w", err)
	}

	return path, nil
}

// CreateProject inserts a project row.
func (s *SQLiteStore) CreateProject(ctx context.Context, p types.Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, org_id, name, client_name, start_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.OrgID, p.Name, p.ClientName, fmtTime(p.StartDate), fmtTime(orNow(p.CreatedAt)))
	return err
}

// GetProject returns the project with the given id.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, client_name, start_date, created_at
		FROM projects WHERE id = ?
	`, id)

	var p types.Project
	var startDate, createdAt string
	if err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.ClientName, &startDate, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var err error
	if p.StartDate, err = parseTime(startDate); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateUser inserts a user row.
func (s *SQLiteStore) CreateUser(ctx context.Context, u types.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, org_id, email, name, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.OrgID, u.Email, u.Name, string(u.Role), fmtTime(orNow(u.CreatedAt)))
	return err
}

// GetUser returns the user with the given id.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, email, name, role, created_at
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

// CreateVendor inserts a vendor row.
func (s *SQLiteStore) CreateVendor(ctx context.Context, v types.Vendor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendors (id, org_id, name, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, v.ID, v.OrgID, v.Name, nullableString(v.UserID), fmtTime(orNow(v.CreatedAt)))
	return err
}

// GetVendor returns the vendor with the given id.
func (s *SQLiteStore) GetVendor(ctx context.Context, id string) (*types.Vendor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, user_id, created_at
		FROM vendors WHERE id = ?
	`, id)

	var v types.Vendor
	var userID sql.NullString
	var createdAt string
	if err := row.Scan(&v.ID, &v.OrgID, &v.Name, &userID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	v.UserID = userID.String

	var err error
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVendorUser resolves the user account linked to a vendor.
// Returns ErrNotFound when the vendor does not exist or has no linked user.
func (s *SQLiteStore) GetVendorUser(ctx context.Context, vendorID string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.org_id, u.email, u.name, u.role, u.created_at
		FROM vendors v
		JOIN users u ON u.id = v.user_id
		WHERE v.id = ?
	`, vendorID)
	return scanUser(row)
}

// CreateNotification inserts an in-app notification row.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n types.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, org_id, user_id, title, description, notify_type, link, related_kind, related_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.OrgID, n.UserID, n.Title, n.Description, n.Type, n.Link, n.RelatedKind, n.RelatedID, fmtTime(orNow(n.CreatedAt)))
	return err
}

// --- scan/format helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*types.User, error) {
	var u types.User
	var role, createdAt string
	if err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.Name, &role, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = types.Role(role)

	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func marshalRoles(roles []types.VisibilityTag) (string, error) {
	if roles == nil {
		roles = []types.VisibilityTag{}
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return "", fmt.Errorf("marshal visibility roles: %w", err)
	}
	return string(data), nil
}

func unmarshalRoles(data string) ([]types.VisibilityTag, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var roles []types.VisibilityTag
	if err := json.Unmarshal([]byte(data), &roles); err != nil {
		return nil, fmt.Errorf("unmarshal visibility roles: %w", err)
	}
	if len(roles) == 0 {
		return nil, nil
	}
	return roles, nil
}
