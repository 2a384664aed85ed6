package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "player",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	SessionStateTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "session_state_transitions_total",
		Help:      "Total stream session state transitions by from/to state.",
	}, []string{"from", "to"})

	ReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "reloads_total",
		Help:      "Total stream reloads by trigger (open, seek, resolution, audio).",
	}, []string{"trigger"})

	KeyframeProbesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "keyframe_probes_total",
		Help:      "Total keyframe probe requests by outcome (ok, fallback, stale).",
	}, []string{"outcome"})

	KeyframeProbeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "player",
		Name:      "keyframe_probe_duration_seconds",
		Help:      "Duration of keyframe probe round trips in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	SubtitleFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "subtitle_fetches_total",
		Help:      "Total subtitle payload fetches by source (embedded, remote) and outcome.",
	}, []string{"source", "outcome"})

	SubtitleSearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "subtitle_searches_total",
		Help:      "Total online subtitle searches by outcome (ok, empty, error).",
	}, []string{"outcome"})

	CuesParsedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "cues_parsed_total",
		Help:      "Total subtitle cues parsed across all tracks.",
	})

	ProgressReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "progress_reports_total",
		Help:      "Total watch progress reports delivered to the hosting page.",
	})

	ShellConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "player",
		Name:      "shell_connected",
		Help:      "1 when a media surface shell is connected, 0 otherwise.",
	})

	UIClientsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "player",
		Name:      "ui_clients_connected",
		Help:      "Number of UI WebSocket clients currently connected.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SessionStateTransitionsTotal,
		ReloadsTotal,
		KeyframeProbesTotal,
		KeyframeProbeDuration,
		SubtitleFetchesTotal,
		SubtitleSearchesTotal,
		CuesParsedTotal,
		ProgressReportsTotal,
		ShellConnected,
		UIClientsConnected,
	)
}
