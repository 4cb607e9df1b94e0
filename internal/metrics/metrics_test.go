package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaxxstorm/dhtingest/internal/integrity"
	"github.com/jaxxstorm/dhtingest/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.Observe(model.ExperimentSummary{
		Nodes:       2,
		FailedNodes: []string{"C"},
		CIDs:        5,
		Lookups:     7,
		Snapshots:   3,
		Publishes:   4,
		Skipped:     map[model.SkipReason]int{model.SkipUnresolvedCID: 2},
	})
	m.Violation(integrity.KindDuplicateCID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Experiments))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Nodes.WithLabelValues("alive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Nodes.WithLabelValues("failed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Rows.WithLabelValues("lookups")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Skipped.WithLabelValues("unresolved_cid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Violations.WithLabelValues("DUPLICATE_CID")))
}

func TestNilIngestIsNoop(t *testing.T) {
	var m *Ingest
	m.Observe(model.ExperimentSummary{Nodes: 1})
	m.Violation(integrity.KindBadMode)
	require.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Observe(model.ExperimentSummary{Lookups: 3})
	path := filepath.Join(t.TempDir(), "ingest.prom")

	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `dhtingest_rows_total{table="lookups"} 3`))
}
