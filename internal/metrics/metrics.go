// Package metrics registers the Prometheus counters and gauges the
// specification's error-handling and testable-properties sections name,
// and optionally serves them over HTTP. Grounded on the teacher's
// prometheus.go, trimmed to the counters this core actually emits.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every counter/gauge the pipeline updates.
type Registry struct {
	CRCFail            prometheus.Counter
	FECUncorrectable   prometheus.Counter
	SyncLost           prometheus.Counter
	SyncAcquired       prometheus.Counter
	IQDropped          prometheus.Counter
	PCMDropped         prometheus.Counter
	GrantUnresolved    prometheus.Counter
	GrantsEmitted      prometheus.Counter
	ActiveCalls        prometheus.Gauge
	TotalCalls         prometheus.Counter
	AudioSinkDown      prometheus.Gauge
	ParseErrors        prometheus.Counter
	ProcessCPUPercent  prometheus.Gauge
	ProcessRSSBytes    prometheus.Gauge
}

// New registers a fresh Registry against the default Prometheus registerer.
// Use NewWith for tests, which need an isolated registerer to avoid
// "duplicate metrics collector registration" across test runs.
func New() *Registry {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers a Registry's collectors against the given registerer.
func NewWith(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		CRCFail: factory.NewCounter(prometheus.CounterOpts{
			Name: "trunkrx_crc_fail_total",
			Help: "Protocol units discarded for failing CRC validation.",
		}),
		FECUncorrectable: factory.NewCounter(prometheus.CounterOpts{
			Name: "trunkrx_fec_uncorrectable_total",
			Help: "Protocol units discarded as FEC-uncorrectable.",
		}),
		SyncLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "trunkrx_sync_lost_total",
			Help: "Times a phy-layer sync-lock state machine reverted to SEARCHING.",
		}),
		SyncAcquired: factory.NewCounter(prometheus.CounterOpts{
			Name: "trunkrx_sync_acquired_total",
			Help: "Times a phy-layer sync-lock state machine acquired LOCKED.",
		}),
		IQDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "trunkrx_iq_dropped_total",
			Help: "I/Q blocks dropped by the bounded SDR queue on overflow.",
		}),
		PCMDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "trunkrx_pcm_dropped_total",
			Help: "PCM audio frames dropped by the bounded audio queue on overflow.",
		}),
		GrantUnresolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "trunkrx_grant_unresolved_total",
			Help: "Call grants dropped after 1s because their frequency-ID never resolved.",
		}),
		GrantsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "trunkrx_grants_emitted_total",
			Help: "CallGrant events emitted to the event bus.",
		}),
		ActiveCalls: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trunkrx_active_calls",
			Help: "Current number of active calls in the call manager.",
		}),
		TotalCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "trunkrx_total_calls_total",
			Help: "Total calls opened since startup.",
		}),
		AudioSinkDown: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trunkrx_audio_sink_down",
			Help: "1 if the most recent audio sink write failed, else 0.",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "trunkrx_parse_errors_total",
			Help: "Signaling parse failures inside validated payloads (unknown opcode, bad field range).",
		}),
		ProcessCPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trunkrx_process_cpu_percent",
			Help: "Process CPU usage percent, sampled once per internal/health.Sampler interval.",
		}),
		ProcessRSSBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trunkrx_process_rss_bytes",
			Help: "Process resident set size in bytes, sampled once per internal/health.Sampler interval.",
		}),
	}
}

// Handler returns the HTTP handler to mount at the configured metrics
// endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
