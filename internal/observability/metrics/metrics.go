package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punch_tokens_issued_total",
			Help: "Total number of ephemeral punch tokens issued.",
		},
		[]string{"service", "result"},
	)

	PunchValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punch_validations_total",
			Help: "Total number of punch validations by outcome.",
		},
		[]string{"service", "result", "reason"},
	)

	TOTPValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "totp_validations_total",
			Help: "Total number of TOTP code validations by outcome.",
		},
		[]string{"service", "result", "reason"},
	)

	ReplaysDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replays_detected_total",
			Help: "Total number of replay attempts detected.",
		},
		[]string{"service", "kind"},
	)

	LockoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "totp_lockouts_total",
			Help: "Total number of lockouts triggered.",
		},
		[]string{"service", "reason"},
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": serviceName}).(*prometheus.HistogramVec)
	TokensIssuedTotal = TokensIssuedTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	PunchValidationsTotal = PunchValidationsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	TOTPValidationsTotal = TOTPValidationsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	ReplaysDetectedTotal = ReplaysDetectedTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	LockoutsTotal = LockoutsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		TokensIssuedTotal,
		PunchValidationsTotal,
		TOTPValidationsTotal,
		ReplaysDetectedTotal,
		LockoutsTotal,
	)
}
