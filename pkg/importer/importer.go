package importer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cuties-app/cuties/pkg/matching"
	"github.com/cuties-app/cuties/pkg/store"
)

const (
	MessagesTable     = "messages"
	TestimonialsTable = "friend_testimonials"

	MessagesBatchSize     = 100
	TestimonialsBatchSize = 50

	suggestionsPerName = 3
	previewLen         = 50
)

type Options struct {
	BatchSize int
	PageSize  int
	// DryRun stops after matching: nothing is deleted or inserted.
	DryRun bool
	Now    func() time.Time
}

// Summary is what every import prints when it finishes.
type Summary struct {
	Table         string `json:"table"`
	Total         int    `json:"total"`
	Matched       int    `json:"matched"`
	Skipped       int    `json:"skipped"`
	Unmatched     int    `json:"unmatched"`
	Inserted      int    `json:"inserted"`
	FailedBatches []int  `json:"failed_batches,omitempty"`
	Cleared       bool   `json:"cleared"`
	Atomic        bool   `json:"atomic"`
	DryRun        bool   `json:"dry_run"`
}

// Unmatched describes a source record that was not imported because a
// required user could not be resolved.
type Unmatched struct {
	Line        int
	Reason      string
	Subject     string
	Author      string
	Preview     string
	Suggestions []string
}

type Result struct {
	Summary   Summary
	Unmatched []Unmatched
}

type Importer struct {
	store   store.Store
	writer  *Writer
	log     logrus.FieldLogger
	metrics *Metrics
	opts    Options
}

func New(s store.Store, log logrus.FieldLogger, metrics *Metrics, opts Options) *Importer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PageSize <= 0 {
		opts.PageSize = store.DefaultPageSize
	}
	return &Importer{
		store:   s,
		writer:  NewWriter(s, log),
		log:     log,
		metrics: metrics,
		opts:    opts,
	}
}

func (im *Importer) batchSize(def int) int {
	if im.opts.BatchSize > 0 {
		return im.opts.BatchSize
	}
	return def
}

func (im *Importer) loadIndex(ctx context.Context) (*matching.Index, error) {
	im.log.Info("fetching users for lookup")
	users, err := matching.LoadUsers(ctx, im.store, im.opts.PageSize)
	if err != nil {
		return nil, err
	}
	idx := matching.NewIndex(users)
	im.log.WithFields(logrus.Fields{"users": idx.Len(), "keys": idx.Keys()}).Info("user index ready")
	return idx, nil
}

// write replaces table with rows unless running dry and fills in the
// write-side summary fields.
func (im *Importer) write(ctx context.Context, sum *Summary, rows []store.Row, batchSize int) error {
	sum.DryRun = im.opts.DryRun
	if im.opts.DryRun {
		im.log.WithFields(logrus.Fields{"table": sum.Table, "rows": len(rows)}).Info("dry run, skipping write")
		return nil
	}
	res, err := im.writer.Replace(ctx, sum.Table, rows, batchSize)
	sum.Cleared = res.Deleted
	sum.Inserted = res.Inserted
	sum.FailedBatches = res.FailedBatches
	sum.Atomic = res.Atomic
	return err
}

func (im *Importer) observe(sum Summary) {
	if im.metrics != nil {
		im.metrics.Observe(sum)
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "..."
}

func userID(u *matching.RemoteUser) *string {
	if u == nil {
		return nil
	}
	return &u.ID
}
