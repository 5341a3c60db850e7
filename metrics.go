package authcode

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Values of the outcome label on authcode_credentials_total.
const (
	outcomeSession       = "session"
	outcomeInline        = "inline"
	outcomeRejected      = "rejected"
	outcomeRedirect      = "redirect"
	outcomeMisconfigured = "misconfigured"
	outcomeFailed        = "failed"
)

// Values of the result label on authcode_callbacks_total.
const (
	resultMissingCode    = "missing_code"
	resultExchangeFailed = "exchange_failed"
	resultDiscarded      = "discarded"
	resultRedirected     = "redirected"
	resultRerouted       = "rerouted"
)

type metrics struct {
	credentials *prometheus.CounterVec
	callbacks   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		credentials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcode",
			Name:      "credentials_total",
			Help:      "Protected requests, by how their credentials were resolved.",
		}, []string{"outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcode",
			Name:      "callbacks_total",
			Help:      "Authorization server callbacks, by result.",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.credentials, err = register(reg, m.credentials); err != nil {
		return nil, err
	}
	if m.callbacks, err = register(reg, m.callbacks); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing the collector already registered under the
// same name so several handlers can share a registry.
func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing, nil
		}
	}
	return nil, err
}

func (m *metrics) credential(outcome string) {
	m.credentials.WithLabelValues(outcome).Inc()
}

func (m *metrics) callback(result string) {
	m.callbacks.WithLabelValues(result).Inc()
}
