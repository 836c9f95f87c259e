// Package credentials stores platform login credentials encrypted at rest and
// hands them to the session layer decrypted just-in-time.
package credentials

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/justmadeid/social-services/internal/database"
)

var (
	// ErrNotFound is returned when no credential has the requested name.
	ErrNotFound = errors.New("credential not found")
	// ErrDuplicateName is returned when a credential name is already taken.
	ErrDuplicateName = errors.New("credential name already exists")
)

// Credential is a stored login. Password and TOTP secret are sealed.
type Credential struct {
	ID                string
	Name              string
	Username          string
	EncryptedPassword string
	EncryptedTOTP     string
	Salt              []byte
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastLoginAttempt  *time.Time
	LoginSuccessCount int
	LoginFailureCount int
}

// SQLiteStore persists credentials in SQLite.
type SQLiteStore struct {
	db       *sql.DB
	logger   *slog.Logger
	isMemory bool
}

// NewSQLiteStore creates the credentials table on db if needed.
func NewSQLiteStore(db *sql.DB, isMemory bool, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store := &SQLiteStore{
		db:       db,
		logger:   logger.With("component", "credentials"),
		isMemory: isMemory,
	}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate credentials: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		id TEXT PRIMARY KEY,
		credential_name TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL,
		encrypted_password TEXT NOT NULL,
		encrypted_totp TEXT NOT NULL DEFAULT '',
		salt TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		login_success_count INTEGER NOT NULL DEFAULT 0,
		login_failure_count INTEGER NOT NULL DEFAULT 0,
		last_login_attempt TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_credentials_active ON credentials(is_active, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

const credentialColumns = `id, credential_name, username, encrypted_password, encrypted_totp, salt,
	is_active, login_success_count, login_failure_count, last_login_attempt, created_at, updated_at`

// Create inserts a new credential. ID and timestamps are filled in.
func (s *SQLiteStore) Create(ctx context.Context, c *Credential) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (`+credentialColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, NULL, ?, ?)`,
		c.ID, c.Name, c.Username, c.EncryptedPassword, c.EncryptedTOTP,
		base64.StdEncoding.EncodeToString(c.Salt), boolToInt(c.IsActive),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}
	s.logger.Info("credential created", "name", c.Name)
	return nil
}

// GetByName returns the credential with the given name.
func (s *SQLiteStore) GetByName(ctx context.Context, name string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE credential_name = ?`, name)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return c, nil
}

// List returns all credentials, oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]*Credential, error) {
	return s.query(ctx, `SELECT `+credentialColumns+` FROM credentials ORDER BY created_at ASC`)
}

// GetActiveCredentials returns active credentials, oldest first.
func (s *SQLiteStore) GetActiveCredentials(ctx context.Context) ([]*Credential, error) {
	return s.query(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE is_active = 1 ORDER BY created_at ASC`)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]*Credential, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetActive toggles whether the credential may be picked automatically.
func (s *SQLiteStore) SetActive(ctx context.Context, name string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET is_active = ?, updated_at = ? WHERE credential_name = ?`,
		boolToInt(active), time.Now().UTC().Format(time.RFC3339Nano), name)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	return requireOne(res)
}

// Delete removes a credential.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE credential_name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return requireOne(res)
}

// RecordLoginAttempt bumps the success or failure counter and the attempt time.
func (s *SQLiteStore) RecordLoginAttempt(ctx context.Context, name string, success bool) error {
	column := "login_failure_count"
	if success {
		column = "login_success_count"
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET `+column+` = `+column+` + 1, last_login_attempt = ?, updated_at = ?
		WHERE credential_name = ?`, now, now, name)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return requireOne(res)
}

// Close checkpoints the WAL for file databases. The *sql.DB is owned by the caller.
func (s *SQLiteStore) Close() error {
	if !s.isMemory {
		if err := database.Checkpoint(s.db); err != nil {
			s.logger.Warn("failed to checkpoint WAL before close", "error", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*Credential, error) {
	var (
		c                    Credential
		salt                 string
		active               int
		lastAttempt          sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&c.ID, &c.Name, &c.Username, &c.EncryptedPassword, &c.EncryptedTOTP, &salt,
		&active, &c.LoginSuccessCount, &c.LoginFailureCount, &lastAttempt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	c.IsActive = active == 1
	c.Salt, _ = base64.StdEncoding.DecodeString(salt)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if lastAttempt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastAttempt.String); err == nil {
			c.LastLoginAttempt = &t
		}
	}
	return &c, nil
}

func requireOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
