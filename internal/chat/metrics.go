package chat

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type syncMetrics struct {
	polls      prometheus.Counter
	pollErrors *prometheus.CounterVec
	merged     prometheus.Counter
	sends      *prometheus.CounterVec
	retries    prometheus.Counter
}

var (
	syncMetricsOnce sync.Once
	syncMetricsInst *syncMetrics
)

func globalSyncMetrics() *syncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetricsInst = newSyncMetrics()
	})
	return syncMetricsInst
}

func newSyncMetrics() *syncMetrics {
	return &syncMetrics{
		polls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatdesk",
			Subsystem: "chatsync",
			Name:      "polls_total",
			Help:      "Long-poll requests issued",
		}),
		pollErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goatdesk",
			Subsystem: "chatsync",
			Name:      "poll_errors_total",
			Help:      "Failed long-poll requests, labeled by error kind",
		}, []string{"kind"}),
		merged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatdesk",
			Subsystem: "chatsync",
			Name:      "messages_merged_total",
			Help:      "Messages merged into stores from poll batches",
		}),
		sends: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goatdesk",
			Subsystem: "chatsync",
			Name:      "sends_total",
			Help:      "Send attempts, labeled by result",
		}, []string{"result"}),
		retries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatdesk",
			Subsystem: "chatsync",
			Name:      "retries_total",
			Help:      "Backoff retries scheduled by the poll loop",
		}),
	}
}

func (m *syncMetrics) recordPoll() {
	if m == nil {
		return
	}
	m.polls.Inc()
}

func (m *syncMetrics) recordPollError(kind string) {
	if m == nil {
		return
	}
	m.pollErrors.WithLabelValues(kind).Inc()
}

func (m *syncMetrics) recordMerged(n int) {
	if m == nil || n == 0 {
		return
	}
	m.merged.Add(float64(n))
}

func (m *syncMetrics) recordSend(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.sends.WithLabelValues(result).Inc()
}

func (m *syncMetrics) recordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
