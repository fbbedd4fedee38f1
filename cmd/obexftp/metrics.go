package main

import (
	"net/http"

	"github.com/andaru/obex/framing"
	"github.com/andaru/obex/obexerr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics are the server's Prometheus metrics
type metrics struct {
	registry *prometheus.Registry

	ActiveSessions prometheus.Gauge
	TotalSessions  prometheus.Counter
	Replies        *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obexftp_active_sessions",
			Help: "Number of active OBEX sessions",
		}),
		TotalSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obexftp_sessions_total",
			Help: "Total number of OBEX sessions accepted",
		}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obexftp_replies_total",
			Help: "Total number of responses sent, by request opcode and response code",
		}, []string{"opcode", "code"}),
	}
	m.registry.MustRegister(m.ActiveSessions, m.TotalSessions, m.Replies)
	return m
}

// onReply counts a response, for session.ServerConfig.OnReply
func (m *metrics) onReply(op framing.Opcode, code obexerr.Code) {
	m.Replies.WithLabelValues(op.String(), code.String()).Inc()
}

func (m *metrics) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return mux
}
