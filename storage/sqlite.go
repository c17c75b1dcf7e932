package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage keeps users, counters and sessions in a local SQLite file.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	// WAL mode for concurrent readers alongside the writer, and a busy
	// timeout so concurrent writers queue instead of failing with
	// SQLITE_BUSY. The modernc driver only honors pragmas spelled in the
	// _pragma=name(value) form.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		username TEXT,
		first_name TEXT,
		last_name TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS requests (
		user_id INTEGER NOT NULL REFERENCES users(user_id),
		service_name TEXT NOT NULL,
		request_count INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, service_name)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		user_id INTEGER PRIMARY KEY,
		tag TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// EnsureUser inserts on first contact; an existing row is left untouched.
func (s *SQLiteStorage) EnsureUser(user *User) error {
	query := `
		INSERT INTO users (user_id, username, first_name, last_name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`

	_, err := s.db.Exec(query, user.UserId, user.Username, user.FirstName, user.LastName, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("ensuring user: %w", err)
	}
	return nil
}

// IncrementUsage is a single upsert statement, so the read-modify-write is
// atomic inside SQLite.
func (s *SQLiteStorage) IncrementUsage(userId int64, serviceName string) error {
	query := `
		INSERT INTO requests (user_id, service_name, request_count, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(user_id, service_name)
		DO UPDATE SET request_count = request_count + 1, updated_at = excluded.updated_at`

	_, err := s.db.Exec(query, userId, serviceName, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("incrementing usage: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UsageCounts(userId int64) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT service_name, request_count FROM requests WHERE user_id = ?`, userId)
	if err != nil {
		return nil, fmt.Errorf("querying usage: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var service string
		var count int
		if err := rows.Scan(&service, &count); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		counts[service] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading usage rows: %w", err)
	}
	return counts, nil
}

func (s *SQLiteStorage) Selection(userId int64) (string, error) {
	var tag string
	err := s.db.QueryRow(`SELECT tag FROM sessions WHERE user_id = ?`, userId).Scan(&tag)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying session: %w", err)
	}
	return tag, nil
}

func (s *SQLiteStorage) SetSelection(userId int64, tag string) error {
	query := `
		INSERT INTO sessions (user_id, tag, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET tag = excluded.tag, updated_at = excluded.updated_at`

	_, err := s.db.Exec(query, userId, tag, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("setting selection: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
