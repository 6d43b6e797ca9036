package database

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

type databaseMetrics struct {
	set *metrics.Set

	readTransactions  *metrics.Counter
	writeTransactions *metrics.Counter
	writeLockTimeouts *metrics.Counter
	commits           *metrics.Counter
	emptyCommits      *metrics.Counter
	failedCommits     *metrics.Counter
	rollbacks         *metrics.Counter
	commitDuration    *metrics.Histogram
	committedKeys     *metrics.Histogram
}

func newDatabaseMetrics(registry *snapshotRegistry) *databaseMetrics {
	set := metrics.NewSet()
	set.NewGauge("fedstore_live_snapshots", func() float64 {
		return float64(registry.liveCount())
	})
	set.NewGauge("fedstore_latest_version", func() float64 {
		return float64(registry.latestSnapshot().version())
	})

	return &databaseMetrics{
		set:               set,
		readTransactions:  set.NewCounter("fedstore_read_transactions_total"),
		writeTransactions: set.NewCounter("fedstore_write_transactions_total"),
		writeLockTimeouts: set.NewCounter("fedstore_write_lock_timeouts_total"),
		commits:           set.NewCounter("fedstore_commits_total"),
		emptyCommits:      set.NewCounter("fedstore_empty_commits_total"),
		failedCommits:     set.NewCounter("fedstore_failed_commits_total"),
		rollbacks:         set.NewCounter("fedstore_rollbacks_total"),
		commitDuration:    set.NewHistogram("fedstore_commit_duration_seconds"),
		committedKeys:     set.NewHistogram("fedstore_committed_keys"),
	}
}

// WriteMetrics writes the metrics of the database to w in Prometheus text
// exposition format.
func (db *Database) WriteMetrics(w io.Writer) {
	db.metrics.set.WritePrometheus(w)
}
