package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RealtimeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicerag_realtime_sessions",
		Help: "Number of realtime relay sessions in progress.",
	})
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicerag_tool_calls_total",
		Help: "Tool calls made by the realtime model.",
	}, []string{"tool", "outcome"})
	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicerag_tool_duration_seconds",
		Help:    "Duration of tool calls made by the realtime model.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})
	CallEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicerag_call_events_total",
		Help: "Call automation events received, by type.",
	}, []string{"type"})
	LawyerQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicerag_lawyer_queries_total",
		Help: "Questions answered by the AI Lawyer.",
	}, []string{"outcome"})
	LawyerIndexDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicerag_lawyer_index_duration_seconds",
		Help:    "Time taken to load, split and embed an uploaded PDF.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)
