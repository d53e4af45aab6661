package pki

import (
	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
	"github.com/prometheus/client_golang/prometheus"
)

// CheckCounter counts recorded validation checks by key and status.
type CheckCounter struct {
	checks *prometheus.CounterVec
}

func NewPrometheusObserver(registerer prometheus.Registerer) (*CheckCounter, error) {
	checks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpki_validation_checks_total",
			Help: "Validation checks recorded, by key and status.",
		},
		[]string{"key", "status"},
	)
	if registerer != nil {
		if err := registerer.Register(checks); err != nil {
			return nil, err
		}
	}
	return &CheckCounter{checks: checks}, nil
}

// Observe is meant to be set as the Observer of a ValidationResult.
func (c *CheckCounter) Observe(location librpki.ValidationLocation, check librpki.ValidationCheck) {
	c.checks.With(prometheus.Labels{"key": check.Key, "status": check.Status.String()}).Inc()
}

// Attach makes result report to the counter.
func (c *CheckCounter) Attach(result *librpki.ValidationResult) *librpki.ValidationResult {
	result.Observer = c.Observe
	return result
}

func (c *CheckCounter) Collector() prometheus.Collector {
	return c.checks
}
