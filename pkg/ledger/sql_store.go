package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the placeholder style and driver name of a SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DriverName returns the database/sql driver registered for d.
func (d Dialect) DriverName() string {
	return string(d)
}

func (d Dialect) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		if d == DialectPostgres {
			ps[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ps[i] = "?"
		}
	}
	return strings.Join(ps, ", ")
}

// recorded_at holds FormatTimestamp text: a reload must hash the same bytes
// that were hashed on append.
const ledgerSchema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	sequence_no BIGINT PRIMARY KEY,
	application_id TEXT NOT NULL,
	decision TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	hash TEXT NOT NULL UNIQUE
);`

// SQLStore persists the ledger through database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// OpenSQLStore opens dsn with the dialect's driver and ensures the schema.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s ledger: %w", dialect, err)
	}
	s := NewSQLStore(db, dialect)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the ledger table if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("init ledger schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Append(ctx context.Context, e Entry) error {
	query := `INSERT INTO ledger_entries (sequence_no, application_id, decision, recorded_at, prev_hash, hash) VALUES (` +
		s.dialect.placeholders(6) + `)`
	_, err := s.db.ExecContext(ctx, query,
		int64(e.SequenceNo), e.ApplicationID, string(e.Decision), FormatTimestamp(e.Timestamp), e.PrevHash, e.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry %d: %w", e.SequenceNo, err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence_no, application_id, decision, recorded_at, prev_hash, hash FROM ledger_entries ORDER BY sequence_no ASC`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			seq      int64
			decision string
			ts       string
		)
		if err := rows.Scan(&seq, &e.ApplicationID, &decision, &ts, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.SequenceNo = uint64(seq)
		e.Decision = contracts.Verdict(decision)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = t.UTC()
		} else {
			e.rawTimestamp = ts
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return entries, nil
}
