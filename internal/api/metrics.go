package api

import (
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts the session-level traffic the server handles.
type Metrics struct {
	registry *prometheus.Registry

	sequencesCreated prometheus.Counter
	tokensAdvanced   prometheus.Counter
	samplesDrawn     prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sequencesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_sequences_created_total",
			Help: "Sequences created over the API.",
		}),
		tokensAdvanced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_tokens_advanced_total",
			Help: "Tokens committed through advance calls.",
		}),
		samplesDrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_samples_drawn_total",
			Help: "Tokens sampled (not necessarily committed).",
		}),
	}
	m.registry.MustRegister(m.sequencesCreated, m.tokensAdvanced, m.samplesDrawn)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *echo.Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}
