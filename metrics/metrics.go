// Package metrics wires Prometheus counters around a Limiter from the
// outside. The limiter's own methods never import this package or call
// into it directly: metric emission is a collaborator concern, and this
// package is how a caller opts in, rather than Check/Incr reaching out to
// Prometheus themselves.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	ratelimit "slidewin/ratelimit"
)

// Collector holds the counters a caller registers once at startup.
type Collector struct {
	Decisions  *prometheus.CounterVec // labels: op, decision (allowed|denied)
	StoreErrs  *prometheus.CounterVec // labels: op
	ScriptErrs *prometheus.CounterVec // labels: op
}

// NewCollector builds and registers a Collector against reg. Pass
// prometheus.DefaultRegisterer for the usual global MustRegister pattern,
// or a private registry in tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ratelimitd_decisions_total", Help: "Limiter decisions by outcome"},
			[]string{"op", "decision"},
		),
		StoreErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ratelimitd_store_errors_total", Help: "Store errors surfaced by the limiter"},
			[]string{"op"},
		),
		ScriptErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ratelimitd_script_errors_total", Help: "Script protocol violations"},
			[]string{"op"},
		),
	}
	reg.MustRegister(c.Decisions, c.StoreErrs, c.ScriptErrs)
	return c
}

// Observe records the outcome of a single Check/Incr call. op is
// "check" or "incr". Any error that is not a *ratelimit.ScriptError,
// including ratelimit.ErrNoValidKeys, is counted under StoreErrs.
func (c *Collector) Observe(op string, denied bool, err error) {
	if err != nil {
		var scriptErr *ratelimit.ScriptError
		if errors.As(err, &scriptErr) {
			c.ScriptErrs.WithLabelValues(op).Inc()
			return
		}
		c.StoreErrs.WithLabelValues(op).Inc()
		return
	}
	decision := "allowed"
	if denied {
		decision = "denied"
	}
	c.Decisions.WithLabelValues(op, decision).Inc()
}
