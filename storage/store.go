package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrUserExists is returned by CreateUser when the username is already taken.
var ErrUserExists = errors.New("storage: user already exists")

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("storage: database path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS usuarios (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS transacciones (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    username       TEXT NOT NULL,
    cuenta_origen  TEXT NOT NULL,
    cuenta_destino TEXT NOT NULL,
    cantidad       REAL NOT NULL,
    mac_verificado INTEGER NOT NULL DEFAULT 1,
    timestamp      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_transacciones_usuario ON transacciones(username, timestamp);
CREATE TABLE IF NOT EXISTS nonces (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    valor  BLOB UNIQUE NOT NULL,
    expira TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nonces_expira ON nonces(expira);
`

// Store wraps the embedded sqlite database holding users, nonces, and the
// transaction audit log.
type Store struct {
	db *sql.DB
}

// Open initialises the backing store using a sqlite-compatible DSN, creating
// parent directories for on-disk paths and applying the schema.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	if !strings.HasPrefix(trimmed, "file:") && trimmed != ":memory:" {
		if dir := filepath.Dir(trimmed); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serialises writers; sqlite allows one at a time anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateUser inserts a new user row. Usernames are unique and case-sensitive;
// a taken name yields ErrUserExists.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO usuarios(username, password_hash, created_at)
        VALUES(?, ?, ?)
    `, username, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if affected == 0 {
		return ErrUserExists
	}
	return nil
}

// PasswordHash returns the stored hash for username. The second return value
// reports whether the user exists.
func (s *Store) PasswordHash(ctx context.Context, username string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM usuarios WHERE username = ?`, username,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select password hash: %w", err)
	}
	return hash, true, nil
}

// UserExists reports whether username has a row.
func (s *Store) UserExists(ctx context.Context, username string) (bool, error) {
	_, ok, err := s.PasswordHash(ctx, username)
	return ok, err
}

// AdmitNonce records value as used for the next ttl and reports whether it was
// admitted. The UNIQUE constraint on valor makes the insert an atomic
// test-and-set: of any number of concurrent calls with the same value exactly
// one observes an affected row. This is the anti-replay commit point.
func (s *Store) AdmitNonce(ctx context.Context, value []byte, ttl time.Duration) (bool, error) {
	expira := time.Now().UTC().Add(ttl)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO nonces(valor, expira) VALUES(?, ?)`, value, expira)
	if err != nil {
		return false, fmt.Errorf("insert nonce: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert nonce: %w", err)
	}
	return affected == 1, nil
}

// SweepExpiredNonces deletes nonce rows whose expiry is strictly before now and
// returns the number removed. Safe to run concurrently with admission; an
// admitted nonce stays non-admissible until swept.
func (s *Store) SweepExpiredNonces(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nonces WHERE expira < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep nonces: %w", err)
	}
	return res.RowsAffected()
}

// Transaction is one append-only audit row describing an accepted transfer
// intent. Rows are never updated or deleted.
type Transaction struct {
	ID            int64
	Username      string
	CuentaOrigen  string
	CuentaDestino string
	Cantidad      float64
	MACVerificado bool
	Timestamp     time.Time
}

// AppendTransaction inserts an audit row and returns its assigned id.
func (s *Store) AppendTransaction(ctx context.Context, username, cuentaOrigen, cuentaDestino string, cantidad float64, macVerificado bool) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO transacciones(username, cuenta_origen, cuenta_destino, cantidad, mac_verificado, timestamp)
        VALUES(?, ?, ?, ?, ?, ?)
    `, username, cuentaOrigen, cuentaDestino, cantidad, macVerificado, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return id, nil
}

// TransactionsByUser returns the user's audit rows, most recent first.
func (s *Store) TransactionsByUser(ctx context.Context, username string) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, username, cuenta_origen, cuenta_destino, cantidad, mac_verificado, timestamp
        FROM transacciones
        WHERE username = ?
        ORDER BY timestamp DESC, id DESC
    `, username)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.Username, &tx.CuentaOrigen, &tx.CuentaDestino, &tx.Cantidad, &tx.MACVerificado, &tx.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
