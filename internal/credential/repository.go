package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for credential persistence.
//
// The sync engine and ingestion pipeline consume credentials read-only;
// writes arrive from admin actions.
type Repository interface {
	// GetByID retrieves a credential by its unique identifier.
	// Returns ErrNotFound if the credential does not exist.
	GetByID(ctx context.Context, id string) (*Credential, error)

	// List retrieves all credentials, revoked included.
	List(ctx context.Context) ([]Credential, error)

	// ListActiveByType retrieves all non-revoked credentials of the given
	// type. This is the authoritative set for a sync run.
	ListActiveByType(ctx context.Context, t Type) ([]Credential, error)

	// FindActive looks up a non-revoked credential by type and normalized
	// value. Returns ErrNotFound when nothing matches.
	FindActive(ctx context.Context, t Type, normalizedValue string) (*Credential, error)

	// Create inserts a new credential. The normalized value is computed
	// by the caller via Normalize. Returns ErrExists on duplicate ID.
	Create(ctx context.Context, c *Credential) error

	// Revoke soft-deletes a credential so the next sync cycle removes it
	// from device memory. Returns ErrNotFound if the credential does not
	// exist or is already revoked.
	Revoke(ctx context.Context, id string) error

	// SetDenylisted flags or unflags a credential for unconditional deny.
	SetDenylisted(ctx context.Context, id string, denylisted bool) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed credential repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const credentialColumns = `id, type, value, normalized_value, user_id, note,
	denylisted, revoked_at, created_at, updated_at`

// GetByID retrieves a credential by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = ?`

	c, err := scanCredential(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying credential by id: %w", err)
	}
	return c, nil
}

// List retrieves all credentials, revoked included.
func (r *SQLiteRepository) List(ctx context.Context) ([]Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials ORDER BY created_at`
	return r.queryCredentials(ctx, query)
}

// ListActiveByType retrieves all non-revoked credentials of the given type.
func (r *SQLiteRepository) ListActiveByType(ctx context.Context, t Type) ([]Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials
		WHERE type = ? AND revoked_at IS NULL
		ORDER BY normalized_value`
	return r.queryCredentials(ctx, query, string(t))
}

// FindActive looks up a non-revoked credential by type and normalized value.
func (r *SQLiteRepository) FindActive(ctx context.Context, t Type, normalizedValue string) (*Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials
		WHERE type = ? AND normalized_value = ? AND revoked_at IS NULL
		LIMIT 1`

	c, err := scanCredential(r.db.QueryRowContext(ctx, query, string(t), normalizedValue))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying credential by value: %w", err)
	}
	return c, nil
}

// Create inserts a new credential.
func (r *SQLiteRepository) Create(ctx context.Context, c *Credential) error {
	if !c.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, c.Type)
	}
	if c.NormalizedValue == "" {
		return ErrEmptyValue
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO credentials (` + credentialColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID,
		string(c.Type),
		c.Value,
		c.NormalizedValue,
		nullableString(c.UserID),
		c.Note,
		boolToInt(c.Denylisted),
		nullableTime(c.RevokedAt),
		c.CreatedAt.Format(time.RFC3339),
		c.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return fmt.Errorf("inserting credential: %w", err)
	}
	return nil
}

// Revoke soft-deletes a credential.
func (r *SQLiteRepository) Revoke(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE credentials SET revoked_at = ?, updated_at = ?
		WHERE id = ? AND revoked_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("revoking credential: %w", err)
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

// SetDenylisted flags or unflags a credential for unconditional deny.
func (r *SQLiteRepository) SetDenylisted(ctx context.Context, id string, denylisted bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE credentials SET denylisted = ?, updated_at = ?
		WHERE id = ?`,
		boolToInt(denylisted), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating denylist flag: %w", err)
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

// queryCredentials executes a query returning multiple credentials.
func (r *SQLiteRepository) queryCredentials(ctx context.Context, query string, args ...any) ([]Credential, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		creds = append(creds, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}
	return creds, nil
}

// rowScanner abstracts over sql.Row and sql.Rows for the scan helper.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCredential scans a row or rows result into a Credential.
func scanCredential(scanner rowScanner) (*Credential, error) {
	var c Credential
	var typeStr string
	var userID sql.NullString
	var denylisted int
	var revokedAt sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&c.ID,
		&typeStr,
		&c.Value,
		&c.NormalizedValue,
		&userID,
		&c.Note,
		&denylisted,
		&revokedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Type = Type(typeStr)
	c.Denylisted = denylisted != 0
	if userID.Valid {
		c.UserID = &userID.String
	}
	if revokedAt.Valid {
		t, err := time.Parse(time.RFC3339, revokedAt.String)
		if err == nil {
			c.RevokedAt = &t
		}
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled

	return &c, nil
}

// nullableString converts *string to a driver-friendly value.
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
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
