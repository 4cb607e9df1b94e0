// Package metrics exposes ingestion counters in Prometheus format.
package metrics

import (
	"github.com/jaxxstorm/dhtingest/internal/integrity"
	"github.com/jaxxstorm/dhtingest/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest holds the counters for one ingestion run. A nil *Ingest is valid
// and records nothing.
type Ingest struct {
	Registry *prometheus.Registry

	Experiments prometheus.Counter
	Nodes       *prometheus.CounterVec // labels: state
	CIDs        prometheus.Counter
	Rows        *prometheus.CounterVec // labels: table
	Skipped     *prometheus.CounterVec // labels: reason
	Violations  *prometheus.CounterVec // labels: kind
}

func New() *Ingest {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Ingest{
		Registry: reg,
		Experiments: factory.NewCounter(prometheus.CounterOpts{
			Name: "dhtingest_experiments_total",
			Help: "Experiment directories ingested",
		}),
		Nodes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dhtingest_nodes_total",
			Help: "Declared nodes by survival state",
		}, []string{"state"}),
		CIDs: factory.NewCounter(prometheus.CounterOpts{
			Name: "dhtingest_cids_total",
			Help: "Content identifiers in the ownership indices",
		}),
		Rows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dhtingest_rows_total",
			Help: "Rows emitted per output table",
		}, []string{"table"}),
		Skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dhtingest_skipped_total",
			Help: "Input records left out of the tables",
		}, []string{"reason"}),
		Violations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dhtingest_integrity_violations_total",
			Help: "Fatal integrity violations",
		}, []string{"kind"}),
	}
}

// Observe adds one experiment's summary to the counters.
func (m *Ingest) Observe(s model.ExperimentSummary) {
	if m == nil {
		return
	}
	m.Experiments.Inc()
	m.Nodes.WithLabelValues("alive").Add(float64(s.Nodes))
	m.Nodes.WithLabelValues("failed").Add(float64(len(s.FailedNodes)))
	m.CIDs.Add(float64(s.CIDs))
	m.Rows.WithLabelValues("lookups").Add(float64(s.Lookups))
	m.Rows.WithLabelValues("snapshots").Add(float64(s.Snapshots))
	m.Rows.WithLabelValues("publishes").Add(float64(s.Publishes))
	for reason, n := range s.Skipped {
		m.Skipped.WithLabelValues(string(reason)).Add(float64(n))
	}
}

func (m *Ingest) Violation(kind integrity.Kind) {
	if m == nil {
		return
	}
	m.Violations.WithLabelValues(string(kind)).Inc()
}

// WriteTextfile dumps the counters in the node_exporter textfile format.
func (m *Ingest) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
