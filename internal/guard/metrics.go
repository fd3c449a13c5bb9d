package guard

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: решения по (исход, guardrail, причина, shadow)
	DecisionsTotal *prometheus.CounterVec

	// Latency: полное время прогона цепочки (микросекундный диапазон)
	ChainDuration prometheus.Histogram

	// Saturation: сколько ключей сейчас держим в памяти
	TrackedKeys prometheus.Gauge

	// Evidence: заполненность буфера конвейера (backpressure)
	EvidenceBufferFill prometheus.Gauge

	// Evidence: исходы персистентности по статусу подписи
	EvidencePersisted *prometheus.CounterVec

	// Signer: состояние Circuit Breaker (0 - ок, 1 - выбило)
	SignerBreakerOpen prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "igw_decisions_total",
			Help: "Guardrail decisions by outcome, guardrail, reason and shadow flag.",
		}, []string{"decision", "guardrail", "reason", "shadow_mode"}),

		ChainDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "igw_chain_duration_seconds",
			Help:    "Histogram of guardrail chain evaluation time.",
			Buckets: []float64{.000005, .00001, .000025, .00005, .0001, .00025, .0005, .001, .0025, .005, .01},
		}),

		TrackedKeys: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "igw_tracked_keys",
			Help: "Current number of client keys with window state.",
		}),

		EvidenceBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "igw_evidence_buffer_utilization",
			Help: "Current number of decisions in the evidence buffer.",
		}),

		EvidencePersisted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "igw_evidence_persisted_total",
			Help: "Persisted evidence bundles by verification status.",
		}, []string{"status"}), // статусы: signed, failed

		SignerBreakerOpen: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "igw_signer_breaker_open",
			Help: "Signer circuit breaker state (0=closed, 1=open).",
		}),
	}
}

// Observe — точка эмиссии телеметрии: ровно один инкремент счетчика
// и одно наблюдение гистограммы на Decision.
func (m *Metrics) Observe(d Decision, elapsed time.Duration) {
	m.DecisionsTotal.WithLabelValues(
		d.Outcome.Final(),
		d.Guardrail,
		d.Reason,
		strconv.FormatBool(d.ShadowMode),
	).Inc()
	m.ChainDuration.Observe(elapsed.Seconds())
}
