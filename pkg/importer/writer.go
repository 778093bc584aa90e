// Package importer turns parsed legacy CSV records into rows of the app's
// tables and replaces the table contents with them.
package importer

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cuties-app/cuties/pkg/store"
)

// deleteAllFilter matches every row: no primary key equals the nil UUID.
var deleteAllFilter = store.Neq("id", uuid.Nil.String())

type ReplaceResult struct {
	Table string
	// Deleted is false when clearing the table failed; inserts still ran.
	Deleted       bool
	Batches       int
	FailedBatches []int // 1-based
	Inserted      int
	Atomic        bool
}

// Writer clears a table and repopulates it batch by batch.
type Writer struct {
	store    store.Store
	log      logrus.FieldLogger
	warnOnce sync.Once
}

func NewWriter(s store.Store, log logrus.FieldLogger) *Writer {
	return &Writer{store: s, log: log}
}

// Replace deletes every row of table and inserts rows in consecutive batches
// of batchSize. A failed delete or batch is logged and the run goes on with
// the next step. On a transactional store the whole replace commits at once;
// otherwise a crash part way leaves the table partially filled.
func (w *Writer) Replace(ctx context.Context, table string, rows []store.Row, batchSize int) (ReplaceResult, error) {
	if batchSize <= 0 {
		return ReplaceResult{}, errors.Errorf("invalid batch size %d", batchSize)
	}
	res := ReplaceResult{Table: table}

	tx, ok := w.store.(store.Transactional)
	if !ok {
		w.warnOnce.Do(func() {
			w.log.Warn("store backend has no transactions: delete and inserts are not atomic")
		})
		w.replace(ctx, w.store, table, rows, batchSize, &res)
		return res, ctx.Err()
	}

	res.Atomic = true
	err := tx.InTx(ctx, func(ctx context.Context, s store.Store) error {
		w.replace(ctx, s, table, rows, batchSize, &res)
		return ctx.Err()
	})
	if err != nil {
		return ReplaceResult{Table: table, Atomic: true}, errors.Wrapf(err, "replace %s", table)
	}
	return res, nil
}

func (w *Writer) replace(ctx context.Context, s store.Store, table string, rows []store.Row, batchSize int, res *ReplaceResult) {
	log := w.log.WithField("table", table)

	log.Info("clearing existing rows")
	if err := s.Delete(ctx, table, deleteAllFilter); err != nil {
		log.WithError(err).Error("clear table failed, continuing")
	} else {
		res.Deleted = true
	}

	batches := Batches(rows, batchSize)
	res.Batches = len(batches)
	for i, batch := range batches {
		if ctx.Err() != nil {
			return
		}
		n := i + 1
		if _, err := s.Insert(ctx, table, batch); err != nil {
			res.FailedBatches = append(res.FailedBatches, n)
			log.WithFields(logrus.Fields{"batch": n, "rows": len(batch)}).WithError(err).Error("insert batch failed")
			continue
		}
		res.Inserted += len(batch)
		log.WithField("batch", n).Infof("inserted %d/%d", res.Inserted, len(rows))
	}
}

// Batches splits items into consecutive chunks of at most size.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
