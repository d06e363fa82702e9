package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a record id is unknown
var ErrNotFound = errors.New("transaction not found")

// BusyTimeout is how long a connection waits on a locked database before
// failing with SQLITE_BUSY.
const BusyTimeout = 5 * time.Second

// DSN builds the sqlite3 connection string for path. WAL mode and the busy
// timeout are applied to every pooled connection.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_journal_mode=WAL&_busy_timeout=%d", path, sep, BusyTimeout.Milliseconds())
}

// Store is a SQLite-backed transaction table
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	owned  bool
}

// Config holds store configuration. DB takes precedence over DBPath and is
// left open on Close.
type Config struct {
	DBPath string
	DB     *sql.DB
	Logger zerolog.Logger
}

// Open opens (or creates) the transaction store
func Open(cfg Config) (*Store, error) {
	db := cfg.DB
	owned := false
	if db == nil {
		if cfg.DBPath == "" {
			return nil, errors.New("database path is required")
		}
		var err error
		db, err = sql.Open("sqlite3", DSN(cfg.DBPath))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		owned = true

		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	s := &Store{db: db, logger: cfg.Logger, owned: owned}
	if err := s.initSchema(); err != nil {
		if owned {
			db.Close()
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS transaction_info (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			amount REAL NOT NULL,
			currency TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			transfer_note TEXT NOT NULL DEFAULT '',
			transaction_type TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			subcategory TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_transaction_category ON transaction_info(category);
		CREATE INDEX IF NOT EXISTS idx_transaction_created ON transaction_info(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the underlying handle so the vector index can share the file
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the store
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

const insertSQL = `INSERT INTO transaction_info
	(id, name, amount, currency, created_at, transfer_note, transaction_type, category, subcategory)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectColumns = `id, name, amount, currency, created_at, transfer_note, transaction_type, category, subcategory`

// Create inserts a single record. An empty id is filled in.
func (s *Store) Create(ctx context.Context, t *Transaction) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	_, err := s.db.ExecContext(ctx, insertSQL, args(t)...)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
	}
	return nil
}

// CreateBatch inserts records in one transaction
func (s *Store) CreateBatch(ctx context.Context, txs []*Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		if t.ID == "" {
			t.ID = NewID()
		}
		if _, err := stmt.ExecContext(ctx, args(t)...); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	s.logger.Debug().Int("count", len(txs)).Msg("Transactions stored")
	return nil
}

// Get returns one record by id
func (s *Store) Get(ctx context.Context, id string) (Transaction, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM transaction_info WHERE id = ?", id)
	t, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

// GetByIDs returns the records for ids in the order given. Unknown ids are
// skipped.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]Transaction, error) {
	if len(ids) == 0 {
		return []Transaction{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := "SELECT " + selectColumns + " FROM transaction_info WHERE id IN (" + placeholders + ")"

	queryArgs := make([]interface{}, len(ids))
	for i, id := range ids {
		queryArgs[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Transaction, len(ids))
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, err
		}
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Transaction, 0, len(byID))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, t)
	}
	return out, nil
}

// List returns all records, newest first
func (s *Store) List(ctx context.Context) ([]Transaction, error) {
	return s.query(ctx, "SELECT "+selectColumns+" FROM transaction_info ORDER BY created_at DESC, id")
}

// ListByCategory returns the records in one category, newest first
func (s *Store) ListByCategory(ctx context.Context, category string) ([]Transaction, error) {
	return s.query(ctx, "SELECT "+selectColumns+" FROM transaction_info WHERE category = ? ORDER BY created_at DESC, id", category)
}

// Count returns the number of stored records
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transaction_info").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, query string, queryArgs ...interface{}) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(row scanner) (Transaction, error) {
	var t Transaction
	var created int64
	err := row.Scan(&t.ID, &t.Name, &t.Amount, &t.Currency, &created,
		&t.TransferNote, &t.TransactionType, &t.Category, &t.Subcategory)
	if err != nil {
		return Transaction{}, err
	}
	t.CreatedAt = time.Unix(created, 0).UTC()
	return t, nil
}

func args(t *Transaction) []interface{} {
	return []interface{}{
		t.ID, t.Name, t.Amount, t.Currency, t.CreatedAt.Unix(),
		t.TransferNote, t.TransactionType, t.Category, t.Subcategory,
	}
}
