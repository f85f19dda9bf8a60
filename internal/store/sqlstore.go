package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// dialect captures the few places where PostgreSQL and SQLite SQL differ.
// Queries are written with '?' placeholders and rebound for PostgreSQL.
type dialect struct {
	name     string
	numbered bool   // rewrite '?' into $1, $2, ...
	likeOp   string // case-insensitive substring operator
	// listValue converts a string slice into a driver argument.
	listValue func([]string) interface{}
	// listScanner returns a scan destination filling dst.
	listScanner func(dst *[]string) interface{}
}

var postgresDialect = dialect{
	name:     "postgres",
	numbered: true,
	likeOp:   "ILIKE",
	listValue: func(v []string) interface{} {
		if len(v) == 0 {
			return nil
		}
		return pq.Array(v)
	},
	listScanner: func(dst *[]string) interface{} { return pq.Array(dst) },
}

var sqliteDialect = dialect{
	name:     "sqlite3",
	numbered: false,
	likeOp:   "LIKE",
	listValue: func(v []string) interface{} {
		if len(v) == 0 {
			return nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(data)
	},
	listScanner: func(dst *[]string) interface{} { return &jsonStringList{dst: dst} },
}

// jsonStringList scans a JSON array stored in a TEXT column.
type jsonStringList struct {
	dst *[]string
}

func (l *jsonStringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l.dst = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported list column type %T", src)
	}
	if len(raw) == 0 {
		*l.dst = nil
		return nil
	}
	return json.Unmarshal(raw, l.dst)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqlStore holds the query logic shared by PostgresStore and SQLiteStore.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

// q adapts a '?' placeholder query to the store's dialect.
func (s *sqlStore) q(query string) string {
	if !s.d.numbered {
		return query
	}
	return rebind(query)
}

func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *sqlStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("sqlStore.withTx: rollback failed", "dialect", s.d.name, "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// affectedOrNotFound maps a zero-row update or delete to ErrNotFound.
func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected check failed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// migrate applies the embedded schema for the dialect.
func (s *sqlStore) migrate(schema string) error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *sqlStore) Close() error {
	slog.Debug("Closing database connection", "dialect", s.d.name)
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close database", "dialect", s.d.name, "error", err)
	} else {
		slog.Debug("Database connection closed successfully", "dialect", s.d.name)
	}
	return err
}

func now() time.Time {
	return time.Now().UTC()
}
