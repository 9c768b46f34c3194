package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "portalauth"

// Collector groups every metric the engine records.
type Collector struct {
	logins          *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	passwordChanges *prometheus.CounterVec
	denials         *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	logouts         prometheus.Counter
	auditDropped    prometheus.Counter
	latency         *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration, which suits tests that read values directly.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "login_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "registration_total",
			Help: "Registration attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "refresh_total",
			Help: "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "verify_total",
			Help: "Access token verifications by outcome class.",
		}, []string{"outcome"}),
		passwordChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "password_change_total",
			Help: "Password change attempts by outcome.",
		}, []string{"outcome"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "policy_denied_total",
			Help: "Authorization denials by reason code.",
		}, []string{"code"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter by route class.",
		}, []string{"class"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "logout_total",
			Help: "Logout operations.",
		}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "audit_dropped_total",
			Help: "Audit events dropped due to dispatcher backpressure.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "operation_duration_seconds",
			Help:    "Latency of engine operations.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}

	if reg != nil {
		for _, col := range c.collectors() {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.logins, c.registrations, c.refreshes, c.verifications, c.passwordChanges,
		c.denials, c.rateLimited, c.logouts, c.auditDropped, c.latency,
	}
}

func (c *Collector) Login(outcome string) {
	if c != nil {
		c.logins.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) Registration(outcome string) {
	if c != nil {
		c.registrations.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) Refresh(outcome string) {
	if c != nil {
		c.refreshes.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) Verify(outcome string) {
	if c != nil {
		c.verifications.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) PasswordChange(outcome string) {
	if c != nil {
		c.passwordChanges.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) Denied(code string) {
	if c != nil {
		c.denials.WithLabelValues(code).Inc()
	}
}

func (c *Collector) RateLimited(class string) {
	if c != nil {
		c.rateLimited.WithLabelValues(class).Inc()
	}
}

func (c *Collector) Logout() {
	if c != nil {
		c.logouts.Inc()
	}
}

func (c *Collector) AuditDropped() {
	if c != nil {
		c.auditDropped.Inc()
	}
}

// Observe records the duration of operation since start.
func (c *Collector) Observe(operation string, start time.Time) {
	if c != nil {
		c.latency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
