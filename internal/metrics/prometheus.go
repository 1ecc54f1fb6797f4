package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "candle_stream"

type Prometheus struct {
	Metrics *Metrics

	registry      *prometheus.Registry
	connOpened    prometheus.Counter
	connClosed    prometheus.Counter
	connActive    prometheus.Gauge
	fetchOutcomes *prometheus.CounterVec
	updatesSent   prometheus.Counter
	sendFailed    prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	connOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "connections_opened_total",
		Help:      "Total number of accepted websocket connections.",
	})
	connClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "connections_closed_total",
		Help:      "Total number of closed websocket connections.",
	})
	connActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "connections_active",
		Help:      "Websocket connections currently open.",
	})
	fetchOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "fetch_total",
		Help:      "Total number of market data fetches, partitioned by outcome.",
	}, []string{"outcome"})
	updatesSent := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "updates_sent_total",
		Help:      "Total number of price updates written to clients.",
	})
	sendFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "send_failed_total",
		Help:      "Total number of failed price update writes.",
	})

	registry.MustRegister(
		connOpened, connClosed, connActive, fetchOutcomes, updatesSent, sendFailed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		ConnectionsOpened:  connOpened,
		ConnectionsClosed:  connClosed,
		ActiveConnections:  connActive,
		FetchSucceeded:     fetchOutcomes.WithLabelValues("ok"),
		FetchEmpty:         fetchOutcomes.WithLabelValues("empty"),
		FetchTimedOut:      fetchOutcomes.WithLabelValues("timeout"),
		FetchProcessFailed: fetchOutcomes.WithLabelValues("process"),
		FetchDecodeFailed:  fetchOutcomes.WithLabelValues("decode"),
		UpdatesSent:        updatesSent,
		SendFailed:         sendFailed,
	}

	return &Prometheus{
		Metrics:       m,
		registry:      registry,
		connOpened:    connOpened,
		connClosed:    connClosed,
		connActive:    connActive,
		fetchOutcomes: fetchOutcomes,
		updatesSent:   updatesSent,
		sendFailed:    sendFailed,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
