package tickets

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type boardMetrics struct {
	fetches     prometheus.Counter
	fetchErrors *prometheus.CounterVec
	merged      prometheus.Counter
	moves       *prometheus.CounterVec
	retries     prometheus.Counter
	boardSize   *prometheus.GaugeVec
}

var (
	boardMetricsOnce sync.Once
	boardMetricsInst *boardMetrics
)

func globalBoardMetrics() *boardMetrics {
	boardMetricsOnce.Do(func() {
		boardMetricsInst = newBoardMetrics()
	})
	return boardMetricsInst
}

func newBoardMetrics() *boardMetrics {
	return &boardMetrics{
		fetches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatdesk",
			Subsystem: "ticketsync",
			Name:      "fetches_total",
			Help:      "Ticket fetch requests issued",
		}),
		fetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goatdesk",
			Subsystem: "ticketsync",
			Name:      "fetch_errors_total",
			Help:      "Failed ticket fetches, labeled by error kind",
		}, []string{"kind"}),
		merged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatdesk",
			Subsystem: "ticketsync",
			Name:      "tickets_merged_total",
			Help:      "Tickets merged into boards from fetch batches",
		}),
		moves: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goatdesk",
			Subsystem: "ticketsync",
			Name:      "moves_total",
			Help:      "Board moves, labeled by destination bucket",
		}, []string{"bucket"}),
		retries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatdesk",
			Subsystem: "ticketsync",
			Name:      "retries_total",
			Help:      "Backoff retries scheduled after fetch failures",
		}),
		boardSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "goatdesk",
			Subsystem: "ticketsync",
			Name:      "board_size",
			Help:      "Tickets currently on the board, labeled by bucket",
		}, []string{"bucket"}),
	}
}

func (m *boardMetrics) recordFetch() {
	if m == nil {
		return
	}
	m.fetches.Inc()
}

func (m *boardMetrics) recordFetchError(kind string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(kind).Inc()
}

func (m *boardMetrics) recordMerged(n int) {
	if m == nil || n == 0 {
		return
	}
	m.merged.Add(float64(n))
}

func (m *boardMetrics) recordMove(to Bucket) {
	if m == nil {
		return
	}
	m.moves.WithLabelValues(string(to)).Inc()
}

func (m *boardMetrics) recordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *boardMetrics) recordBoard(snap Snapshot) {
	if m == nil {
		return
	}
	m.boardSize.WithLabelValues(string(BucketInbound)).Set(float64(len(snap.Inbound)))
	m.boardSize.WithLabelValues(string(BucketMine)).Set(float64(len(snap.Mine)))
	m.boardSize.WithLabelValues(string(BucketDone)).Set(float64(len(snap.Done)))
}
