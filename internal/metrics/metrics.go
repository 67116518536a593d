package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько занимает один вызов Sheets API
	SheetsCallDuration *prometheus.HistogramVec

	// Traffic: вызовы Sheets API по операциям и исходам
	SheetsCallsTotal *prometheus.CounterVec

	// Принятые решения (approve/reject)
	DecisionsTotal *prometheus.CounterVec

	// Конфликты "первый писатель победил"
	ConflictsTotal prometheus.Counter

	// Уведомления заявителям
	NotificationsTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило)
	CircuitBreakerState prometheus.Gauge

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		SheetsCallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enrollgate_sheets_call_duration_seconds",
			Help:    "Histogram of Google Sheets API call latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"op"}),

		SheetsCallsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "enrollgate_sheets_calls_total",
			Help: "Total number of Google Sheets API calls.",
		}, []string{"op", "outcome"}), // исходы: ok, throttled, error

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "enrollgate_decisions_total",
			Help: "Total number of operator decisions.",
		}, []string{"decision"}), // approve, reject

		ConflictsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "enrollgate_decision_conflicts_total",
			Help: "Decisions rejected because the request was already decided.",
		}),

		NotificationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "enrollgate_notifications_total",
			Help: "Applicant notifications by outcome.",
		}, []string{"outcome"}), // sent, failed, skipped

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "enrollgate_sheets_circuit_breaker_state",
			Help: "Current state of the Sheets circuit breaker (0=closed, 1=open).",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "enrollgate_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}
