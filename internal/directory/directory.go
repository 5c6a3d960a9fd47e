// ABOUTME: SQLite-backed identity directory: user records with bcrypt password hashes
// ABOUTME: Seeds the presence snapshot with offline identities and their lastSeen times

package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// Directory errors
var (
	ErrNotFound      = errors.New("user not found")
	ErrExists        = errors.New("user already exists")
	ErrBadCredential = errors.New("invalid credentials")
)

// dummyHash is compared against when a user does not exist, keeping login
// timing independent of username validity.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// User is a single identity record.
type User struct {
	Username  string
	LastSeen  time.Time
	CreatedAt time.Time
}

// Store is a SQLite-backed user directory.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates a directory store at the given path, creating the schema and
// parent directories as needed. Use ":memory:" for an ephemeral directory.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "directory")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating directory database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening directory database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("identity directory opened", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			username      TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			created_at    INTEGER NOT NULL,
			last_seen     INTEGER NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Seed inserts the default demo users if the directory is empty.
func (s *Store) Seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return nil
	}

	defaults := map[string]string{
		"demo":  "demo",
		"alex":  "123",
		"maria": "123",
		"artem": "123",
	}
	for username, password := range defaults {
		if err := s.Register(ctx, username, password); err != nil {
			return fmt.Errorf("seeding user %s: %w", username, err)
		}
	}
	s.logger.Info("seeded demo users", "count", len(defaults))
	return nil
}

// Register creates a new user record with a bcrypt password hash.
// Returns ErrExists when the username is already taken.
func (s *Store) Register(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at, last_seen) VALUES (?, ?, ?, ?)",
		username, string(hash), now, now,
	)
	if err != nil {
		var exists int
		if scanErr := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM users WHERE username = ?", username,
		).Scan(&exists); scanErr == nil && exists > 0 {
			return ErrExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// Authenticate verifies a username/password pair. Unknown users and wrong
// passwords both return ErrBadCredential; a dummy bcrypt comparison keeps
// the two cases indistinguishable by timing.
func (s *Store) Authenticate(ctx context.Context, username, password string) error {
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT password_hash FROM users WHERE username = ?", username,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return ErrBadCredential
	}
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrBadCredential
	}
	return nil
}

// Exists reports whether a user record exists for the given username.
func (s *Store) Exists(ctx context.Context, username string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE username = ?", username,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking user existence: %w", err)
	}
	return count > 0, nil
}

// All returns every known identity ordered by username.
func (s *Store) All(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT username, created_at, last_seen FROM users ORDER BY username",
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var createdAt, lastSeen int64
		if err := rows.Scan(&u.Username, &createdAt, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		u.CreatedAt = time.UnixMilli(createdAt)
		u.LastSeen = time.UnixMilli(lastSeen)
		users = append(users, u)
	}
	return users, rows.Err()
}

// Touch updates a user's last_seen time. Touching an unknown username is a
// no-op, matching the behavior of presence transitions for identities that
// were never registered.
func (s *Store) Touch(ctx context.Context, username string, lastSeen time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET last_seen = ? WHERE username = ?",
		lastSeen.UnixMilli(), username,
	)
	if err != nil {
		return fmt.Errorf("updating last_seen: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
