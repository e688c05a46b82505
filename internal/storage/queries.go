package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds one method per row-level statement. It carries no business
// rules; every statement is scoped by user_id.
type Queries struct {
	db     DBTX
	driver Driver
}

func New(db DBTX, driver Driver) *Queries {
	return &Queries{db: db, driver: driver}
}

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, driver: q.driver}
}

// rebind rewrites ? placeholders to $n for PostgreSQL. Statements in this
// package never carry literal question marks.
func (q *Queries) rebind(query string) string {
	if q.driver != DriverPostgres {
		return query
	}
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

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.rebind(query), args...)
}

// insertReturningID runs an INSERT ... RETURNING id. Both SQLite (3.35+)
// and PostgreSQL support the clause.
func (q *Queries) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := q.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// execTargeted runs a statement expected to touch at least one row.
func (q *Queries) execTargeted(ctx context.Context, query string, args ...any) error {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Scope selects the rows of one user a statement applies to. A nil IDs
// slice means every row the user owns; an empty non-nil slice means none.
type Scope struct {
	UserID int64
	IDs    []int64
}

func AllOf(userID int64) Scope {
	return Scope{UserID: userID}
}

func OnlyIDs(userID int64, ids ...int64) Scope {
	if ids == nil {
		ids = []int64{}
	}
	return Scope{UserID: userID, IDs: ids}
}

// Empty reports whether the scope selects nothing.
func (s Scope) Empty() bool {
	return s.IDs != nil && len(s.IDs) == 0
}

// filter renders "user_id = ? [AND column IN (...)]" with its arguments.
func (s Scope) filter(column string) (string, []any) {
	args := []any{s.UserID}
	if s.IDs == nil {
		return "user_id = ?", args
	}
	clause, inArgs := inList(s.IDs)
	return "user_id = ? AND " + column + " IN (" + clause + ")", append(args, inArgs...)
}

func inList(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

// OwnedIDs lists the ids of table owned by userID.
func (q *Queries) OwnedIDs(ctx context.Context, table Table, userID int64) ([]int64, error) {
	rows, err := q.query(ctx, "SELECT id FROM "+string(table)+" WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", table, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
