package importer

import (
	"strconv"

	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects per-table counters of an import run on a private registry
// so they can be written out as a node_exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	records       *prometheus.CounterVec
	matched       *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	unmatched     *prometheus.CounterVec
	inserted      *prometheus.CounterVec
	failedBatches *prometheus.CounterVec
	lastRun       *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	counter := func(name, help string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cuties_import",
			Name:      name,
			Help:      help,
		}, []string{"table"})
	}
	return &Metrics{
		registry:      reg,
		records:       counter("records_total", "Source records read."),
		matched:       counter("matched_total", "Records with every required user resolved."),
		skipped:       counter("skipped_total", "Records skipped for empty content or unresolved users."),
		unmatched:     counter("unmatched_total", "Records whose required user was not found."),
		inserted:      counter("inserted_total", "Rows inserted."),
		failedBatches: counter("failed_batches_total", "Insert batches that failed."),
		lastRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cuties_import",
			Name:      "last_run_info",
			Help:      "Set to 1 for the table of the last run; dry_run tells whether writes were skipped.",
		}, []string{"table", "dry_run"}),
	}
}

func (m *Metrics) Observe(s Summary) {
	m.records.WithLabelValues(s.Table).Add(float64(s.Total))
	m.matched.WithLabelValues(s.Table).Add(float64(s.Matched))
	m.skipped.WithLabelValues(s.Table).Add(float64(s.Skipped))
	m.unmatched.WithLabelValues(s.Table).Add(float64(s.Unmatched))
	m.inserted.WithLabelValues(s.Table).Add(float64(s.Inserted))
	m.failedBatches.WithLabelValues(s.Table).Add(float64(len(s.FailedBatches)))
	m.lastRun.WithLabelValues(s.Table, strconv.FormatBool(s.DryRun)).Set(1)
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes every collected metric to path in the text exposition
// format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrap(err, "write metrics textfile")
	}
	return nil
}
