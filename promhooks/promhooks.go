// Package promhooks exports tiering events and map residency as Prometheus
// metrics.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tierkv"
)

// Hooks counts tiering events. Shard ids are not used as labels.
type Hooks struct {
	Evictions        *prometheus.CounterVec
	LoadThroughs     prometheus.Counter
	FlushedEntries   prometheus.Counter
	WriteBackFailure prometheus.Counter
	PoisonedShards   prometheus.Counter
}

var _ tierkv.Hooks = (*Hooks)(nil)

// New creates the counters and registers them with reg.
// namespace prefixes every metric name, e.g. "app" -> app_tierkv_evictions_total.
func New(reg prometheus.Registerer, namespace string) *Hooks {
	h := &Hooks{
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tierkv",
			Name:      "evictions_total",
			Help:      "Resident entries dropped from memory, by whether they were written back.",
		}, []string{"dirty"}),
		LoadThroughs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tierkv",
			Name:      "load_throughs_total",
			Help:      "Reads served from the backend and made resident.",
		}),
		FlushedEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tierkv",
			Name:      "flushed_entries_total",
			Help:      "Dirty entries persisted by flushes.",
		}),
		WriteBackFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tierkv",
			Name:      "write_back_failures_total",
			Help:      "Failed backend batches during eviction or flush.",
		}),
		PoisonedShards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tierkv",
			Name:      "poisoned_shards_total",
			Help:      "Shards disabled by a panic during a mutation.",
		}),
	}
	reg.MustRegister(h.Evictions, h.LoadThroughs, h.FlushedEntries, h.WriteBackFailure, h.PoisonedShards)
	return h
}

func (h *Hooks) Evicted(_ int, dirty bool) {
	if dirty {
		h.Evictions.WithLabelValues("true").Inc()
		return
	}
	h.Evictions.WithLabelValues("false").Inc()
}

func (h *Hooks) LoadedThrough(int)               { h.LoadThroughs.Inc() }
func (h *Hooks) Flushed(_ int, n int)            { h.FlushedEntries.Add(float64(n)) }
func (h *Hooks) WriteBackFailed(int, int, error) { h.WriteBackFailure.Inc() }
func (h *Hooks) ShardPoisoned(int, any)          { h.PoisonedShards.Inc() }

// StatsSource is implemented by *tierkv.Map.
type StatsSource interface {
	Stats() tierkv.Stats
}

// RegisterStats exposes the residency counters of src as gauges read at
// scrape time.
func RegisterStats(reg prometheus.Registerer, namespace string, src StatsSource) {
	gauge := func(name, help string, fn func(tierkv.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tierkv",
			Name:      name,
			Help:      help,
		}, func() float64 { return fn(src.Stats()) })
	}
	reg.MustRegister(
		gauge("keys", "Live keys, resident or on disk.", func(s tierkv.Stats) float64 { return float64(s.Len) }),
		gauge("resident_entries", "Entries held in memory.", func(s tierkv.Stats) float64 { return float64(s.Resident) }),
		gauge("resident_bytes", "Charged size of resident entries.", func(s tierkv.Stats) float64 { return float64(s.ResidentBytes) }),
		gauge("dirty_entries", "Resident entries not yet persisted.", func(s tierkv.Stats) float64 { return float64(s.Dirty) }),
	)
}
