package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Table is one of the catalog tables. Identifiers never come from user input.
type Table string

const (
	TableUsers     Table = "users"
	TableAlbums    Table = "albums"
	TableImages    Table = "images"
	TableFavorites Table = "favorites"
)

var (
	ErrTxActive           = errors.New("database: transaction already active")
	ErrNoTx               = errors.New("database: no active transaction")
	ErrConflict           = errors.New("database: unique constraint violated")
	ErrUnresolvedConflict = errors.New("database: insert conflict could not be resolved to an existing row")
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the catalog handle. A Store returned by Begin is bound to that
// transaction; everything else runs on the pool.
type Store struct {
	db     *sql.DB
	tx     *sql.Tx
	schema SchemaInfo
}

func NewStore(db *sql.DB, schema SchemaInfo) *Store {
	return &Store{db: db, schema: schema}
}

func (s *Store) Schema() SchemaInfo { return s.schema }

func (s *Store) InTx() bool { return s.tx != nil }

func (s *Store) q() Querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Begin starts a transaction. Transactions do not nest: calling Begin on a
// transaction-bound Store returns ErrTxActive.
func (s *Store) Begin(ctx context.Context) (*Store, error) {
	if s.tx != nil {
		return nil, ErrTxActive
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Store{db: s.db, tx: tx, schema: s.schema}, nil
}

func (s *Store) Commit() error {
	if s.tx == nil {
		return ErrNoTx
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Rollback() error {
	if s.tx == nil {
		return ErrNoTx
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction, committing when it returns nil. On a
// transaction-bound Store fn joins the current transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IsUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY constraint.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// now is the timestamp written to created/deleted columns. Always UTC so
// text comparisons in SQLite order correctly.
func now() time.Time {
	return time.Now().UTC()
}

// FetchOne scans the single row produced by query into dest. sql.ErrNoRows
// is returned unwrapped.
func (s *Store) FetchOne(ctx context.Context, query sq.Sqlizer, dest ...any) error {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL for FetchOne: %w", err)
	}
	err = s.q().QueryRowContext(ctx, sqlStr, args...).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("failed to query or scan row: %w", err)
	}
	return nil
}

// FetchAll runs query and calls scan once per row.
func (s *Store) FetchAll(ctx context.Context, query sq.Sqlizer, scan func(rows *sql.Rows) error) error {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL for FetchAll: %w", err)
	}
	rows, err := s.q().QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return nil
}

// FetchScalar returns the single integer column of a single-row query
// (counts, ids). sql.ErrNoRows is returned unwrapped.
func (s *Store) FetchScalar(ctx context.Context, query sq.Sqlizer) (int64, error) {
	var v int64
	if err := s.FetchOne(ctx, query, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// Insert adds a row and returns its id. Unique violations are returned as
// ErrConflict.
func (s *Store) Insert(ctx context.Context, table Table, values map[string]any) (int64, error) {
	sqlStr, args, err := psql.Insert(string(table)).SetMap(values).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for insert into %s: %w", table, err)
	}
	res, err := s.q().ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s: %v", ErrConflict, table, err)
		}
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id for %s: %w", table, err)
	}
	return id, nil
}

// Update applies set to every row matching where and returns the number of rows changed.
func (s *Store) Update(ctx context.Context, table Table, set map[string]any, where sq.Sqlizer) (int64, error) {
	sqlStr, args, err := psql.Update(string(table)).SetMap(set).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for update of %s: %w", table, err)
	}
	return s.exec(ctx, table, "update", sqlStr, args)
}

func (s *Store) Delete(ctx context.Context, table Table, where sq.Sqlizer) (int64, error) {
	sqlStr, args, err := psql.Delete(string(table)).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for delete from %s: %w", table, err)
	}
	return s.exec(ctx, table, "delete", sqlStr, args)
}

// SoftDelete stamps deleted_at on matching rows that are still live.
func (s *Store) SoftDelete(ctx context.Context, table Table, where sq.Sqlizer) (int64, error) {
	return s.Update(ctx, table,
		map[string]any{"deleted_at": now()},
		sq.And{where, sq.Eq{"deleted_at": nil}},
	)
}

func (s *Store) exec(ctx context.Context, table Table, op, sqlStr string, args []any) (int64, error) {
	res, err := s.q().ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s: %v", ErrConflict, table, err)
		}
		return 0, fmt.Errorf("failed to %s %s: %w", op, table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows for %s: %w", table, err)
	}
	return n, nil
}
