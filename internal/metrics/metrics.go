package metrics

import (
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	kudosBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kudoman",
			Name:      "kudos_balance",
			Help:      "Last fetched kudos balance.",
		},
	)
	fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kudoman",
			Name:      "fetches_total",
			Help:      "Number of kudos fetch attempts by result.",
		}, []string{"result"},
	)
	samplesAppended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kudoman",
			Name:      "samples_appended_total",
			Help:      "Number of samples appended to the store.",
		},
	)
	recomputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kudoman",
			Name:      "recompute_duration_seconds",
			Help:      "Time spent recomputing derived columns and rewriting the store.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	backups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kudoman",
			Name:      "backups_total",
			Help:      "Backup snapshot attempts by result.",
		}, []string{"result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{kudosBalance, fetches, samplesAppended, recomputeDuration, backups}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

func SetKudos(v float64)               { kudosBalance.Set(v) }
func IncFetch(result string)           { fetches.WithLabelValues(result).Inc() }
func IncAppended()                     { samplesAppended.Inc() }
func ObserveRecompute(seconds float64) { recomputeDuration.Observe(seconds) }
func IncBackup(result string)          { backups.WithLabelValues(result).Inc() }
