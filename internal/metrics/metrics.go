// Package metrics exposes prometheus counters for the lifecycle operations of
// the lists engine. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lists"

// Entity kinds used as the kind label.
const (
	KindList = "list"
	KindItem = "item"
)

// Metrics holds the engine counters.
type Metrics struct {
	trashed         *prometheus.CounterVec
	restored        *prometheus.CounterVec
	purged          *prometheus.CounterVec
	orphansPurged   *prometheus.CounterVec
	cleanupRuns     *prometheus.CounterVec
	migrated        *prometheus.CounterVec
	migrationErrors prometheus.Counter
}

// New registers the engine counters with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		trashed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trashed_total",
			Help:      "Entities moved to the trash.",
		}, []string{"kind"}),
		restored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restored_total",
			Help:      "Entities restored from the trash.",
		}, []string{"kind"}),
		purged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purged_total",
			Help:      "Entities removed permanently.",
		}, []string{"kind"}),
		orphansPurged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphans_purged_total",
			Help:      "Listitems removed because their list no longer exists.",
		}, []string{"scope"}),
		cleanupRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_runs_total",
			Help:      "Orphan cleanup runs by outcome.",
		}, []string{"outcome"}),
		migrated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "legacy_migrated_total",
			Help:      "Entities imported from the legacy file store.",
		}, []string{"kind"}),
		migrationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "legacy_migration_errors_total",
			Help:      "Legacy records that could not be imported.",
		}),
	}
}

func (m *Metrics) Trashed(kind string, n int64) {
	if m != nil && n > 0 {
		m.trashed.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) Restored(kind string, n int64) {
	if m != nil && n > 0 {
		m.restored.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) Purged(kind string, n int64) {
	if m != nil && n > 0 {
		m.purged.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) OrphansPurged(scope string, n int64) {
	if m != nil && n > 0 {
		m.orphansPurged.WithLabelValues(scope).Add(float64(n))
	}
}

func (m *Metrics) CleanupRun(outcome string) {
	if m != nil {
		m.cleanupRuns.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Migrated(kind string, n int64) {
	if m != nil && n > 0 {
		m.migrated.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) MigrationErrors(n int64) {
	if m != nil && n > 0 {
		m.migrationErrors.Add(float64(n))
	}
}

// WriteFile writes every metric gathered by g to path in the text exposition
// format, for the node exporter textfile collector.
func WriteFile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
