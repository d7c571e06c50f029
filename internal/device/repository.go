package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LivenessKind selects which liveness timestamp to update.
type LivenessKind string

// Liveness timestamp kinds.
const (
	// LivenessPull marks a successful outbound poll of the device.
	LivenessPull LivenessKind = "pull"

	// LivenessPush marks an inbound event delivery from the device.
	LivenessPush LivenessKind = "push"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows different implementations (SQLite, mock) and
// enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrExists if a device with the same ID already exists.
	Create(ctx context.Context, d *Device) error

	// Update modifies an existing device.
	// Returns ErrNotFound if the device does not exist.
	Update(ctx context.Context, d *Device) error

	// Delete removes a device by ID.
	// Returns ErrNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// TouchLiveness sets one of the liveness timestamps. Optimised for
	// the hot ingestion path; does not bump updated_at.
	TouchLiveness(ctx context.Context, id string, kind LivenessKind, at time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed device repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, name, brand, type, host, port, mac, auth_mode,
	username, password, direction, relay_channel, enabled,
	last_online_pull, last_online_push, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	if err := validate(d); err != nil {
		return err
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.Name,
		string(d.Brand),
		string(d.Type),
		d.Host,
		d.Port,
		nullableEmpty(d.MAC),
		string(d.AuthMode),
		d.Username,
		d.Password,
		nullableEmpty(string(d.Direction)),
		d.RelayChannel,
		boolToInt(d.Enabled),
		nullableTime(d.LastOnlinePull),
		nullableTime(d.LastOnlinePush),
		d.CreatedAt.Format(time.RFC3339),
		d.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update modifies an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	if err := validate(d); err != nil {
		return err
	}

	d.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			name = ?, brand = ?, type = ?, host = ?, port = ?, mac = ?,
			auth_mode = ?, username = ?, password = ?, direction = ?,
			relay_channel = ?, enabled = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		d.Name,
		string(d.Brand),
		string(d.Type),
		d.Host,
		d.Port,
		nullableEmpty(d.MAC),
		string(d.AuthMode),
		d.Username,
		d.Password,
		nullableEmpty(string(d.Direction)),
		d.RelayChannel,
		boolToInt(d.Enabled),
		d.UpdatedAt.Format(time.RFC3339),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLiveness sets one of the liveness timestamps.
func (r *SQLiteRepository) TouchLiveness(ctx context.Context, id string, kind LivenessKind, at time.Time) error {
	column := "last_online_pull"
	if kind == LivenessPush {
		column = "last_online_push"
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET "+column+" = ? WHERE id = ?",
		at.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating device liveness: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// validate checks device fields before persistence.
func validate(d *Device) error {
	if !d.Brand.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidBrand, d.Brand)
	}
	if !d.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, d.Type)
	}
	if d.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidAddress)
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidAddress, d.Port)
	}
	return nil
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner interface{ Scan(...any) error }) (*Device, error) {
	var d Device
	var brand, typ, authMode string
	var mac, direction sql.NullString
	var enabled int
	var lastPull, lastPush sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&brand,
		&typ,
		&d.Host,
		&d.Port,
		&mac,
		&authMode,
		&d.Username,
		&d.Password,
		&direction,
		&d.RelayChannel,
		&enabled,
		&lastPull,
		&lastPush,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Brand = Brand(brand)
	d.Type = Type(typ)
	d.AuthMode = AuthMode(authMode)
	d.MAC = mac.String
	d.Direction = Direction(direction.String)
	d.Enabled = enabled != 0
	if lastPull.Valid {
		if t, err := time.Parse(time.RFC3339, lastPull.String); err == nil {
			d.LastOnlinePull = &t
		}
	}
	if lastPush.Valid {
		if t, err := time.Parse(time.RFC3339, lastPush.String); err == nil {
			d.LastOnlinePush = &t
		}
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled

	return &d, nil
}

// nullableEmpty converts an empty string to NULL.
func nullableEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableTime converts *time.Time to RFC3339 text or NULL.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// boolToInt converts a bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
