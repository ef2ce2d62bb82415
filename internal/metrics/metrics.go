package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HistoryPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stellar_feeder_history_pages",
		Help: "The total number of ledger history pages fetched",
	})
	HistoryRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stellar_feeder_history_records",
		Help: "The total number of transaction records ingested into the trade cache",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stellar_feeder_decode_errors",
		Help: "The total number of transaction records that failed to decode",
	})
	Retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_feeder_retries",
		Help: "The total number of retried remote calls",
	}, []string{"op"})
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_feeder_aggregation_runs",
		Help: "The total number of aggregation runs",
	}, []string{"result"})
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stellar_feeder_aggregation_duration_seconds",
		Help:    "Duration of aggregation runs",
		Buckets: prometheus.DefBuckets,
	})
	PoolsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stellar_feeder_pools_skipped",
		Help: "The total number of pools skipped because of invalid state",
	}, []string{"provider"})

	HeadLedger = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stellar_feeder_head_ledger",
		Help: "The latest ledger sequence as seen from the history source",
	})
	LastCachedLedger = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stellar_feeder_last_cached_ledger",
		Help: "The highest ledger sequence stored in the trade cache",
	})
)
