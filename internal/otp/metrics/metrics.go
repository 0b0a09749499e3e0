package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Issued           prometheus.Counter
	DeliveryFailures prometheus.Counter
	Verifications    *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Issued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "otpgate_otp_issued_total",
			Help: "Passcodes issued and persisted",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "otpgate_otp_delivery_failures_total",
			Help: "Passcode deliveries that failed after the record was persisted",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "otpgate_otp_verifications_total",
			Help: "Verification attempts by outcome",
		}, []string{"result"}),
	}
}

func (m *Metrics) RecordIssued() {
	m.Issued.Inc()
}

func (m *Metrics) RecordDeliveryFailure() {
	m.DeliveryFailures.Inc()
}

func (m *Metrics) RecordVerification(result string) {
	m.Verifications.WithLabelValues(result).Inc()
}
