package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/streamchat-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	login         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	username      TEXT NOT NULL UNIQUE,
	role          TEXT NOT NULL DEFAULT 'user',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.UserStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply an alternative schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new credential record. The UNIQUE constraints make
// the insert the atomic uniqueness check: of two racing registrations with
// the same login or username, exactly one passes.
func (s *SQLiteStore) CreateUser(ctx context.Context, login, passwordHash, username, role string) (*store.Credential, error) {
	query := `
		INSERT INTO credentials (login, password_hash, username, role)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, login, passwordHash, username, role)
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("insert credential: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getBy(ctx, "id", id)
}

// GetUserByLogin retrieves a credential by login.
func (s *SQLiteStore) GetUserByLogin(ctx context.Context, login string) (*store.Credential, error) {
	return s.getBy(ctx, "login", login)
}

// GetUserByUsername retrieves a credential by chat username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.Credential, error) {
	return s.getBy(ctx, "username", username)
}

func (s *SQLiteStore) getBy(ctx context.Context, column string, value any) (*store.Credential, error) {
	query := fmt.Sprintf(`
		SELECT id, login, password_hash, username, role, created_at
		FROM credentials
		WHERE %s = ?
	`, column)

	var cred store.Credential
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&cred.ID,
		&cred.Login,
		&cred.PasswordHash,
		&cred.Username,
		&cred.Role,
		&cred.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query credential by %s: %w", column, err)
	}
	return &cred, nil
}

// uniqueConflict maps a sqlite unique-constraint violation to the matching
// store error, or returns nil for unrelated errors.
func uniqueConflict(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return nil
	}
	if sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return nil
	}
	if strings.Contains(sqliteErr.Error(), "credentials.login") {
		return store.ErrLoginExists
	}
	if strings.Contains(sqliteErr.Error(), "credentials.username") {
		return store.ErrUsernameExists
	}
	return store.ErrLoginExists
}
