// Package metrics holds the Prometheus instruments used across the service.
// Collectors register with the default registry at init, so mounting
// promhttp.Handler on /metrics is enough to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_total",
			Help: "Login attempts by outcome (success, invalid, error).",
		}, []string{"outcome"})

	CodesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twofactor_codes_issued_total",
			Help: "Verification codes issued, by delivery channel.",
		}, []string{"channel"})

	VerifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twofactor_verify_total",
			Help: "Verification attempts by result.",
		}, []string{"result"})

	CodeStoreSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "twofactor_code_store_size",
			Help: "Records held by the in-process code store.",
		})

	CodeStoreEvictTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twofactor_code_store_evict_total",
			Help: "Records evicted from the in-process code store, by reason.",
		}, []string{"reason"})

	MailSendTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_send_total",
			Help: "Outbound mail by outcome.",
		}, []string{"outcome"})

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(
		LoginTotal,
		CodesIssuedTotal,
		VerifyTotal,
		CodeStoreSize,
		CodeStoreEvictTotal,
		MailSendTotal,
		HTTPRequestDuration,
	)
}
