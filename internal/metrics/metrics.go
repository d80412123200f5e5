package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RebuildsTotal counts rebuild attempts by outcome
var RebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trade_history_rebuilds_total",
	Help: "Number of derived-state rebuilds, by status.",
}, []string{"status"})

// RebuildDuration observes how long a full wipe-and-replay takes
var RebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "trade_history_rebuild_duration_seconds",
	Help:    "Duration of a full derived-state rebuild.",
	Buckets: prometheus.DefBuckets,
})

// RebuildEventsProcessed records replay input size per rebuild
var RebuildEventsProcessed = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "trade_history_rebuild_events_processed",
	Help: "Events replayed by the most recent rebuild.",
})

// RebuildLotsClosed records closure output size per rebuild
var RebuildLotsClosed = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "trade_history_rebuild_lots_closed",
	Help: "Lot closures emitted by the most recent rebuild.",
})

// IngestFilesTotal counts ingested statement files by outcome
var IngestFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trade_history_ingest_files_total",
	Help: "Number of statement files ingested, by status.",
}, []string{"status"})

// IngestEventsInserted counts events written to the event store
var IngestEventsInserted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trade_history_ingest_events_inserted_total",
	Help: "Events inserted into the event store.",
})
