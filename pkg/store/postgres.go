package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/lib/pq"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Postgres talks to the project database directly. Rows travel as JSON
// (row_to_json / json_populate_recordset) so results have the same shape as
// the REST backend.
type Postgres struct {
	db   *sql.DB
	q    querier
	inTx bool
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, q: db}
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "db connect failed")
	}
	return NewPostgres(db), nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	cols := "*"
	if len(q.Columns) > 0 {
		cols = quoteIdents(q.Columns)
	}
	where, args := buildWhere(q.Filters, nil)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT row_to_json(t) FROM (SELECT %s FROM %s%s", cols, quoteIdent(table), where)
	if q.Order != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", quoteIdent(q.Order))
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	sb.WriteString(") t")

	rows, err := p.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Wrapf(fromPgError(err), "select %s", table)
	}
	return scanJSONRows(rows)
}

func (p *Postgres) Insert(ctx context.Context, table string, rows []Row) ([]Row, error) {
	return p.insert(ctx, table, rows, nil)
}

func (p *Postgres) Upsert(ctx context.Context, table string, rows []Row, onConflict []string) ([]Row, error) {
	if len(onConflict) == 0 {
		return nil, errors.New("upsert requires conflict columns")
	}
	return p.insert(ctx, table, rows, onConflict)
}

func (p *Postgres) insert(ctx context.Context, table string, rows []Row, onConflict []string) ([]Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := rowColumns(rows)
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, errors.Wrap(err, "marshal rows")
	}
	colList := quoteIdents(cols)

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s AS x (%s) SELECT %s FROM json_populate_recordset(NULL::%s, $1)",
		quoteIdent(table), colList, colList, quoteIdent(table))
	if len(onConflict) > 0 {
		fmt.Fprintf(&sb, " ON CONFLICT (%s)", quoteIdents(onConflict))
		conflict := make(map[string]struct{}, len(onConflict))
		for _, c := range onConflict {
			conflict[c] = struct{}{}
		}
		var sets []string
		for _, c := range cols {
			if _, ok := conflict[c]; ok {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c)))
		}
		if len(sets) == 0 {
			sb.WriteString(" DO NOTHING")
		} else {
			fmt.Fprintf(&sb, " DO UPDATE SET %s", strings.Join(sets, ", "))
		}
	}
	sb.WriteString(" RETURNING row_to_json(x.*)")

	var out []Row
	err = p.guarded(ctx, func() error {
		res, qErr := p.q.QueryContext(ctx, sb.String(), string(payload))
		if qErr != nil {
			return fromPgError(qErr)
		}
		out, qErr = scanJSONRows(res)
		return qErr
	})
	if err != nil {
		return nil, errors.Wrapf(err, "insert %s", table)
	}
	return out, nil
}

func (p *Postgres) Update(ctx context.Context, table string, values Row, filters ...Filter) error {
	if len(values) == 0 {
		return nil
	}
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols))
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		args = append(args, values[c])
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdent(c), len(args)))
	}
	where, args := buildWhere(filters, args)
	query := fmt.Sprintf("UPDATE %s SET %s%s", quoteIdent(table), strings.Join(sets, ", "), where)

	err := p.guarded(ctx, func() error {
		_, eErr := p.q.ExecContext(ctx, query, args...)
		return fromPgError(eErr)
	})
	if err != nil {
		return errors.Wrapf(err, "update %s", table)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, table string, filters ...Filter) error {
	if len(filters) == 0 {
		return ErrUnfilteredDelete
	}
	where, args := buildWhere(filters, nil)
	query := fmt.Sprintf("DELETE FROM %s%s", quoteIdent(table), where)

	err := p.guarded(ctx, func() error {
		_, eErr := p.q.ExecContext(ctx, query, args...)
		return fromPgError(eErr)
	})
	if err != nil {
		return errors.Wrapf(err, "delete %s", table)
	}
	return nil
}

func (p *Postgres) Count(ctx context.Context, table string, filters ...Filter) (int64, error) {
	where, args := buildWhere(filters, nil)
	query := fmt.Sprintf("SELECT count(*) FROM %s%s", quoteIdent(table), where)

	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(fromPgError(err), "count %s", table)
	}
	defer func() { _ = rows.Close() }()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, errors.Wrapf(err, "count %s", table)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, errors.Wrapf(fromPgError(err), "count %s", table)
	}
	return n, nil
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if p.inTx {
		return fn(ctx, p)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	txStore := &Postgres{db: p.db, q: tx, inTx: true}
	if err := fn(ctx, txStore); err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			return stderrors.Join(err, rErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

const savepointName = "cuties_stmt"

// guarded isolates fn behind a savepoint when running inside a transaction.
func (p *Postgres) guarded(ctx context.Context, fn func() error) error {
	if !p.inTx {
		return fn()
	}
	if _, err := p.q.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
		return errors.Wrap(err, "savepoint")
	}
	if err := fn(); err != nil {
		if _, rErr := p.q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rErr != nil {
			return stderrors.Join(err, rErr)
		}
		return err
	}
	if _, err := p.q.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return errors.Wrap(err, "release savepoint")
	}
	return nil
}

func buildWhere(filters []Filter, args []any) (string, []any) {
	if len(filters) == 0 {
		return "", args
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		col := quoteIdent(f.Column)
		switch f.Op {
		case OpEq:
			if f.Value == nil {
				parts = append(parts, col+" IS NULL")
				continue
			}
			args = append(args, f.Value)
			parts = append(parts, fmt.Sprintf("%s = $%d", col, len(args)))
		case OpNeq:
			args = append(args, f.Value)
			parts = append(parts, fmt.Sprintf("%s <> $%d", col, len(args)))
		case OpIn:
			args = append(args, pq.Array(f.Values))
			parts = append(parts, fmt.Sprintf("%s::text = ANY($%d)", col, len(args)))
		case OpIsNull:
			parts = append(parts, col+" IS NULL")
		case OpNotNull:
			parts = append(parts, col+" IS NOT NULL")
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

func scanJSONRows(rows *sql.Rows) ([]Row, error) {
	defer func() { _ = rows.Close() }()
	var out []Row
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		var r Row
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, errors.Wrap(err, "decode row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fromPgError(err)
	}
	return out, nil
}

func rowColumns(rows []Row) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for c := range r {
			seen[c] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func quoteIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
