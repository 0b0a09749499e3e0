package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RequestsChecked *prometheus.CounterVec
	StoreFailures   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		RequestsChecked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "otpgate_ratelimit_requests_total",
			Help: "Rate limit checks by outcome",
		}, []string{"outcome"}),
		StoreFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "otpgate_ratelimit_store_failures_total",
			Help: "Bucket store errors during rate limit checks",
		}),
	}
}

func (m *Metrics) RecordAllowed() {
	m.RequestsChecked.WithLabelValues("allowed").Inc()
}

func (m *Metrics) RecordThrottled() {
	m.RequestsChecked.WithLabelValues("throttled").Inc()
}

func (m *Metrics) RecordStoreFailure() {
	m.StoreFailures.Inc()
}
