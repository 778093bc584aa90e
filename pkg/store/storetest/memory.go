// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cuties-app/cuties/pkg/store"
)

type Call struct {
	Method string
	Table  string
	Rows   int
}

// Memory keeps tables as row slices. Hooks let tests inject failures.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]store.Row
	unique map[string][][]string
	calls  []Call

	// FailSelect, FailInsert and FailDelete are consulted before the
	// operation runs; a non-nil error is returned as the operation's result.
	FailSelect func(table string, q store.Query) error
	FailInsert func(table string, call int, rows []store.Row) error
	FailDelete func(table string) error
}

func NewMemory() *Memory {
	return &Memory{
		tables: map[string][]store.Row{},
		unique: map[string][][]string{},
	}
}

// Unique declares a unique constraint enforced on insert.
func (m *Memory) Unique(table string, cols ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unique[table] = append(m.unique[table], cols)
}

// Seed appends rows without going through Insert, assigning ids when missing.
func (m *Memory) Seed(table string, rows ...store.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], withID(r))
	}
}

func (m *Memory) Rows(table string) []store.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Row(nil), m.tables[table]...)
}

func (m *Memory) Calls(method, table string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if c.Method == method && c.Table == table {
			out = append(out, c)
		}
	}
	return out
}

func (m *Memory) Select(_ context.Context, table string, q store.Query) ([]store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "select", Table: table})
	if m.FailSelect != nil {
		if err := m.FailSelect(table, q); err != nil {
			return nil, err
		}
	}
	matched := m.filter(table, q.Filters)
	if q.Order != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return fmt.Sprint(matched[i][q.Order]) < fmt.Sprint(matched[j][q.Order])
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([]store.Row, len(matched))
	for i, r := range matched {
		out[i] = project(r, q.Columns)
	}
	return out, nil
}

func (m *Memory) Insert(_ context.Context, table string, rows []store.Row) ([]store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := len(m.callsOf("insert", table)) + 1
	m.calls = append(m.calls, Call{Method: "insert", Table: table, Rows: len(rows)})
	if m.FailInsert != nil {
		if err := m.FailInsert(table, call, rows); err != nil {
			return nil, err
		}
	}
	for _, r := range rows {
		if err := m.checkUnique(table, r); err != nil {
			return nil, err
		}
	}
	out := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		r = withID(r)
		m.tables[table] = append(m.tables[table], r)
		out = append(out, copyRow(r))
	}
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, table string, rows []store.Row, onConflict []string) ([]store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "upsert", Table: table, Rows: len(rows)})
	out := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		replaced := false
		for i, existing := range m.tables[table] {
			if sameKey(existing, r, onConflict) {
				merged := copyRow(existing)
				for k, v := range r {
					merged[k] = v
				}
				m.tables[table][i] = merged
				out = append(out, copyRow(merged))
				replaced = true
				break
			}
		}
		if !replaced {
			r = withID(r)
			m.tables[table] = append(m.tables[table], r)
			out = append(out, copyRow(r))
		}
	}
	return out, nil
}

func (m *Memory) Update(_ context.Context, table string, values store.Row, filters ...store.Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "update", Table: table})
	for i, r := range m.tables[table] {
		if matches(r, filters) {
			for k, v := range values {
				m.tables[table][i][k] = v
			}
		}
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, table string, filters ...store.Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "delete", Table: table})
	if len(filters) == 0 {
		return store.ErrUnfilteredDelete
	}
	if m.FailDelete != nil {
		if err := m.FailDelete(table); err != nil {
			return err
		}
	}
	kept := m.tables[table][:0]
	for _, r := range m.tables[table] {
		if !matches(r, filters) {
			kept = append(kept, r)
		}
	}
	m.tables[table] = kept
	return nil
}

func (m *Memory) Count(_ context.Context, table string, filters ...store.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "count", Table: table})
	return int64(len(m.filter(table, filters))), nil
}

func (m *Memory) callsOf(method, table string) []Call {
	var out []Call
	for _, c := range m.calls {
		if c.Method == method && c.Table == table {
			out = append(out, c)
		}
	}
	return out
}

func (m *Memory) filter(table string, filters []store.Filter) []store.Row {
	var out []store.Row
	for _, r := range m.tables[table] {
		if matches(r, filters) {
			out = append(out, r)
		}
	}
	return out
}

func (m *Memory) checkUnique(table string, r store.Row) error {
	for _, cols := range m.unique[table] {
		for _, existing := range m.tables[table] {
			if sameKey(existing, r, cols) {
				return &store.Error{
					Code:    store.CodeUniqueViolation,
					Message: fmt.Sprintf("duplicate key value violates unique constraint on %s (%s)", table, strings.Join(cols, ",")),
				}
			}
		}
	}
	return nil
}

func matches(r store.Row, filters []store.Filter) bool {
	for _, f := range filters {
		v, present := r[f.Column]
		isNull := !present || v == nil
		switch f.Op {
		case store.OpEq:
			if f.Value == nil {
				if !isNull {
					return false
				}
				continue
			}
			if isNull || fmt.Sprint(v) != fmt.Sprint(f.Value) {
				return false
			}
		case store.OpNeq:
			if isNull || fmt.Sprint(v) == fmt.Sprint(f.Value) {
				return false
			}
		case store.OpIn:
			if isNull {
				return false
			}
			found := false
			for _, want := range f.Values {
				if fmt.Sprint(v) == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case store.OpIsNull:
			if !isNull {
				return false
			}
		case store.OpNotNull:
			if isNull {
				return false
			}
		}
	}
	return true
}

func sameKey(a, b store.Row, cols []string) bool {
	for _, c := range cols {
		if fmt.Sprint(a[c]) != fmt.Sprint(b[c]) {
			return false
		}
	}
	return true
}

func project(r store.Row, cols []string) store.Row {
	if len(cols) == 0 {
		return copyRow(r)
	}
	out := make(store.Row, len(cols))
	for _, c := range cols {
		out[c] = r[c]
	}
	return out
}

func withID(r store.Row) store.Row {
	r = copyRow(r)
	if id, ok := r["id"]; !ok || id == nil || id == "" {
		r["id"] = uuid.NewString()
	}
	return r
}

func copyRow(r store.Row) store.Row {
	out := make(store.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
