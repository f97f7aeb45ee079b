package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Authentications *prometheus.CounterVec
	MailDispatches  *prometheus.CounterVec
	ErrorResponses  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Authentications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailgate_authentications_total",
			Help: "Authentication attempts by flow and result",
		}, []string{"flow", "result"}),
		MailDispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailgate_mail_dispatches_total",
			Help: "Outbound mail dispatches by result",
		}, []string{"result"}),
		ErrorResponses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailgate_error_responses_total",
			Help: "Error responses written, by error kind",
		}, []string{"kind", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) ObserveAuthentication(flow, result string) {
	if m == nil {
		return
	}
	m.Authentications.WithLabelValues(flow, result).Inc()
}

func (m *Metrics) ObserveMailDispatch(result string) {
	if m == nil {
		return
	}
	m.MailDispatches.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveErrorResponse(kind string, status int) {
	if m == nil {
		return
	}
	m.ErrorResponses.WithLabelValues(kind, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
