package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsInitOnce sync.Once
	sharedMetrics   *serverMetrics
)

type serverMetrics struct {
	requests    *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	connections prometheus.Gauge
}

func getServerMetrics() *serverMetrics {
	metricsInitOnce.Do(func() {
		sm := &serverMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "banco_requests_total",
				Help: "Processed requests by message type and outcome.",
			}, []string{"tipo", "outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "banco_rejected_messages_total",
				Help: "Messages rejected by the validation pipeline, by reason.",
			}, []string{"reason"}),
			connections: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "banco_active_connections",
				Help: "Connections currently being served.",
			}),
		}
		prometheus.MustRegister(sm.requests, sm.rejections, sm.connections)
		sharedMetrics = sm
	})
	return sharedMetrics
}

func (m *serverMetrics) observeRequest(tipo, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(tipo, outcome).Inc()
}

func (m *serverMetrics) observeRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *serverMetrics) connectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *serverMetrics) connectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}
