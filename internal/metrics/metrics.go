// Package metrics exposes Prometheus counters for credential issuance,
// validation and request authentication.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	issued          *prometheus.CounterVec
	validations     *prometheus.CounterVec
	authentications *prometheus.CounterVec
}

// New creates a registry with the Go and process collectors plus the service counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		issued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_credentials_issued_total",
				Help: "Credentials issued by kind and whether an existing one was reused",
			},
			[]string{"kind", "outcome"},
		),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_credential_validations_total",
				Help: "Credential validations by kind and result",
			},
			[]string{"kind", "result"},
		),
		authentications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_request_authentications_total",
				Help: "Request authentications by resolved method",
			},
			[]string{"method"},
		),
	}
	reg.MustRegister(m.issued, m.validations, m.authentications)
	return m
}

// Issued records an issuance attempt. outcome is "created", "rotated", "reused" or "failed".
func (m *Metrics) Issued(kind, outcome string) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(kind, outcome).Inc()
}

// Validated records a validation attempt. result is one of "ok", "expired",
// "invalid", "revoked" or "unknown".
func (m *Metrics) Validated(kind, result string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(kind, result).Inc()
}

// Authenticated records how a request was authenticated: "bearer",
// "refresh_cookie", "api_key" or "none".
func (m *Metrics) Authenticated(method string) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(method).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
