// Package store is the table-scoped access layer used by the import commands.
// Two backends implement it: a PostgREST client for the hosted project API and
// a direct Postgres connection.
package store

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
)

// Row is one table row in its JSON shape (column name -> value).
type Row map[string]any

type Query struct {
	Columns []string
	Filters []Filter
	// Order is the column rows are sorted by (ascending). Empty means unordered.
	Order  string
	Offset int
	// Limit of 0 returns every matching row.
	Limit int
}

type Store interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, rows []Row) ([]Row, error)
	Upsert(ctx context.Context, table string, rows []Row, onConflict []string) ([]Row, error)
	Update(ctx context.Context, table string, values Row, filters ...Filter) error
	Delete(ctx context.Context, table string, filters ...Filter) error
	Count(ctx context.Context, table string, filters ...Filter) (int64, error)
}

// Transactional is implemented by backends that can run several statements
// atomically. Inside fn every mutating statement is isolated by a savepoint,
// so one failed statement does not abort the rest of the transaction.
type Transactional interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

var (
	ErrUnfilteredDelete = errors.New("delete requires at least one filter")
	ErrNoRows           = errors.New("no rows in result")
)

// DefaultPageSize matches the hosted API's maximum rows per response.
const DefaultPageSize = 1000

// SelectAll pages through table with range-bounded selects until a page comes
// back short or empty. The first failing page aborts the walk.
func SelectAll(ctx context.Context, s Store, table string, q Query, pageSize int) ([]Row, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var all []Row
	for page := 0; ; page++ {
		pq := q
		pq.Offset = page * pageSize
		pq.Limit = pageSize
		rows, err := s.Select(ctx, table, pq)
		if err != nil {
			return nil, errors.Wrapf(err, "select %s page %d", table, page)
		}
		if len(rows) == 0 {
			break
		}
		all = append(all, rows...)
		if len(rows) < pageSize {
			break
		}
	}
	return all, nil
}

// SelectOne returns the single row matching q or ErrNoRows.
func SelectOne(ctx context.Context, s Store, table string, q Query) (Row, error) {
	q.Limit = 1
	rows, err := s.Select(ctx, table, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

// Decode converts rows into out (a pointer to a slice or struct) through their
// JSON form, so both backends share the same struct tags.
func Decode(rows any, out any) error {
	b, err := json.Marshal(rows)
	if err != nil {
		return errors.Wrap(err, "marshal rows")
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.Wrap(err, "decode rows")
	}
	return nil
}

// RowsOf converts typed payloads into rows.
func RowsOf[T any](items []T) ([]Row, error) {
	rows := make([]Row, 0, len(items))
	if err := Decode(items, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
