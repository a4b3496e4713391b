package gate

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 判定結果のラベル値
const (
	OutcomeAllowed       = "allowed"
	OutcomeRateLimited   = "rate_limited"
	OutcomeBotExempt     = "bot_exempt"
	OutcomeAssetRedirect = "asset_redirect"
	OutcomeLimiterError  = "limiter_error"
)

// Metrics はゲートの判定件数を Prometheus に公開します。
type Metrics struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
}

// NewMetrics は専用レジストリに登録済みの Metrics を作成します。
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio",
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Edge gate decisions by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(decisions)
	return &Metrics{registry: reg, decisions: decisions}
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

// Handler は /metrics 用のハンドラーを返します。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
