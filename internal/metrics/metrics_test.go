package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Trashed(KindList, 2)
	m.Trashed(KindItem, 0)
	m.Purged(KindItem, 5)
	m.OrphansPurged("live", 3)
	m.CleanupRun("truncated")
	m.CleanupRun("truncated")
	m.Migrated(KindList, 1)
	m.MigrationErrors(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.trashed.WithLabelValues(KindList)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.trashed.WithLabelValues(KindItem)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.purged.WithLabelValues(KindItem)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.orphansPurged.WithLabelValues("live")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cleanupRuns.WithLabelValues("truncated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.migrated.WithLabelValues(KindList)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.migrationErrors))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Trashed(KindList, 1)
		m.CleanupRun("nothing")
		m.MigrationErrors(1)
	})
}

func TestWriteFile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Purged(KindList, 1)

	path := filepath.Join(t.TempDir(), "lists.prom")
	require.NoError(t, WriteFile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `lists_purged_total{kind="list"} 1`)
}
