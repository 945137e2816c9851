// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/i474232898/weather-history-etl/internal/weather"
)

// Pipeline implements weather.Recorder with Prometheus counters.
type Pipeline struct {
	runs        *prometheus.CounterVec
	inserted    prometheus.Counter
	truncations prometheus.Counter
	dropped     prometheus.Counter
}

var _ weather.Recorder = (*Pipeline)(nil)

// NewPipeline creates the counters and registers them with reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		inserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "rows_inserted_total",
			Help:      "Days newly written to weather_daily.",
		}),
		truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "truncation_events_total",
			Help:      "Payloads whose daily series had different lengths.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "truncated_entries_total",
			Help:      "Series entries dropped while aligning daily series.",
		}),
	}
	reg.MustRegister(p.runs, p.inserted, p.truncations, p.dropped)
	return p
}

func (p *Pipeline) RunFinished(outcome string) {
	p.runs.WithLabelValues(outcome).Inc()
}

func (p *Pipeline) RowsInserted(n int) {
	if n > 0 {
		p.inserted.Add(float64(n))
	}
}

func (p *Pipeline) Truncated(ev weather.TruncationEvent) {
	p.truncations.Inc()
	p.dropped.Add(float64(ev.Dropped))
}
