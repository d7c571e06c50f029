package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/device"
)

// defaultQueryLimit bounds unconstrained history reads.
const defaultQueryLimit = 100

// Repository defines the interface for the canonical event log.
//
// The log is append-only: there is no update operation. Corrections are
// new events.
type Repository interface {
	// Insert appends a new event. Returns ErrExists on duplicate ID and
	// ErrInvalid when required fields are missing.
	Insert(ctx context.Context, e *AccessEvent) error

	// GetByID retrieves a single event.
	GetByID(ctx context.Context, id string) (*AccessEvent, error)

	// Find returns events matching the query, newest first.
	Find(ctx context.Context, q Query) ([]AccessEvent, error)

	// RecentForDevice returns the events for one device within the
	// window ending at ref, oldest first. This is the correlator's
	// working set.
	RecentForDevice(ctx context.Context, deviceID string, ref time.Time, window time.Duration) ([]AccessEvent, error)

	// LastOppositeDirection returns the most recent event before ref for
	// the same normalized plate with the opposite direction, or
	// ErrNotFound. Used for dwell pairing.
	LastOppositeDirection(ctx context.Context, plate string, direction device.Direction, ref time.Time) (*AccessEvent, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed event repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const eventColumns = `id, timestamp, device_id, access_type, decision, direction,
	plate_detected, plate_normalized, details, snapshot_path, user_id, credential_id, created_at`

// Insert appends a new event.
func (r *SQLiteRepository) Insert(ctx context.Context, e *AccessEvent) error {
	if e.ID == "" || e.DeviceID == "" || e.Timestamp.IsZero() {
		return fmt.Errorf("%w: id, device_id and timestamp are required", ErrInvalid)
	}
	if e.Decision != DecisionGrant && e.Decision != DecisionDeny {
		return fmt.Errorf("%w: decision %q", ErrInvalid, e.Decision)
	}

	detailsJSON := "{}"
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling details: %w", err)
		}
		detailsJSON = string(b)
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO access_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// plate_detected keeps the exact string the camera reported for
	// audit; queries match on the normalized form.
	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339),
		e.DeviceID,
		string(e.AccessType),
		string(e.Decision),
		nullableEmpty(string(e.Direction)),
		e.PlateDetected,
		credential.Normalize(credential.TypePlate, e.PlateDetected),
		detailsJSON,
		e.SnapshotPath,
		nullableString(e.UserID),
		nullableString(e.CredentialID),
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetByID retrieves a single event.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*AccessEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM access_events WHERE id = ?`

	e, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying event by id: %w", err)
	}
	return e, nil
}

// Find returns events matching the query, newest first.
func (r *SQLiteRepository) Find(ctx context.Context, q Query) ([]AccessEvent, error) {
	var conds []string
	var args []any

	if q.DeviceID != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, q.DeviceID)
	}
	if q.Plate != "" {
		conds = append(conds, "plate_normalized = ?")
		args = append(args, q.Plate)
	}
	if q.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, q.UserID)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, q.Until.UTC().Format(time.RFC3339))
	}
	if q.Decision != "" {
		conds = append(conds, "decision = ?")
		args = append(args, string(q.Decision))
	}

	query := `SELECT ` + eventColumns + ` FROM access_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, created_at DESC"

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	query += " LIMIT ?"
	args = append(args, limit)

	return r.queryEvents(ctx, query, args...)
}

// RecentForDevice returns one device's events within the window ending
// at ref, oldest first.
func (r *SQLiteRepository) RecentForDevice(ctx context.Context, deviceID string, ref time.Time, window time.Duration) ([]AccessEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM access_events
		WHERE device_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, created_at ASC`

	return r.queryEvents(ctx, query,
		deviceID,
		ref.Add(-window).UTC().Format(time.RFC3339),
		ref.UTC().Format(time.RFC3339),
	)
}

// LastOppositeDirection returns the most recent event before ref for the
// same plate with the opposite direction.
func (r *SQLiteRepository) LastOppositeDirection(ctx context.Context, plate string, direction device.Direction, ref time.Time) (*AccessEvent, error) {
	opposite := direction.Opposite()
	if opposite == "" {
		return nil, ErrNotFound
	}

	query := `SELECT ` + eventColumns + ` FROM access_events
		WHERE plate_normalized = ? AND direction = ? AND timestamp < ?
		ORDER BY timestamp DESC, created_at DESC
		LIMIT 1`

	e, err := scanEvent(r.db.QueryRowContext(ctx, query,
		plate, string(opposite), ref.UTC().Format(time.RFC3339)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying opposite-direction event: %w", err)
	}
	return e, nil
}

// queryEvents executes a query returning multiple events.
func (r *SQLiteRepository) queryEvents(ctx context.Context, query string, args ...any) ([]AccessEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []AccessEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// scanEvent scans a row or rows result into an AccessEvent.
func scanEvent(scanner interface{ Scan(...any) error }) (*AccessEvent, error) {
	var e AccessEvent
	var timestamp, accessType, decision string
	var direction sql.NullString
	var plateNormalized string
	var detailsJSON string
	var userID, credentialID sql.NullString
	var createdAt string

	err := scanner.Scan(
		&e.ID,
		&timestamp,
		&e.DeviceID,
		&accessType,
		&decision,
		&direction,
		&e.PlateDetected,
		&plateNormalized,
		&detailsJSON,
		&e.SnapshotPath,
		&userID,
		&credentialID,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	e.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parsing event timestamp: %w", err)
	}
	e.AccessType = AccessType(accessType)
	e.Decision = Decision(decision)
	e.Direction = device.Direction(direction.String)
	if detailsJSON != "" && detailsJSON != "{}" {
		if err := json.Unmarshal([]byte(detailsJSON), &e.Details); err != nil {
			return nil, fmt.Errorf("parsing event details: %w", err)
		}
	}
	if userID.Valid {
		e.UserID = &userID.String
	}
	if credentialID.Valid {
		e.CredentialID = &credentialID.String
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled

	return &e, nil
}

// nullableEmpty converts an empty string to NULL.
func nullableEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableString converts *string to a driver-friendly value.
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
