package ingestion

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/monitoring/pipeline/internal/codec"
)

// serviceNamePattern matches §3's raw, pre-normalization service name
// contract — mixed case is accepted here and lowercased later by
// toMetricEvent, which also applies §4.1's normalized-name contract.
var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{2,100}$`)

// Config bounds the validation rules enforced at the ingestion boundary (§6).
type Config struct {
	MaxMetricValue       float64
	AllowedEnvironments  map[string]bool
	TimestampPastWindow  time.Duration
	TimestampFutureWindow time.Duration
}

// Validator checks a metricRequest against struct tags plus the
// domain-specific rules §6/§7 name: service name shape, enum membership,
// value ceilings (including the percent-family cap), and the timestamp
// window.
type Validator struct {
	cfg   Config
	check *validator.Validate
}

// NewValidator builds a Validator bound to cfg.
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg, check: validator.New()}
}

// Validate runs struct-tag validation followed by the domain rules,
// collecting every violation rather than stopping at the first.
func (v *Validator) Validate(req metricRequest) []string {
	var errs []string

	if err := v.check.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if req.ServiceName != "" && !serviceNamePattern.MatchString(req.ServiceName) {
		errs = append(errs, "serviceName: must match ^[A-Za-z0-9._-]{2,100}$")
	}

	metricType := codec.MetricType(req.MetricType)
	if req.MetricType != "" && !metricType.Valid() {
		errs = append(errs, fmt.Sprintf("metricType: %q is not a recognized metric type", req.MetricType))
	}

	if req.MetricValue < 0 {
		errs = append(errs, "metricValue: must be non-negative")
	} else if req.MetricValue > v.cfg.MaxMetricValue {
		errs = append(errs, fmt.Sprintf("metricValue: exceeds configured ceiling %.2f", v.cfg.MaxMetricValue))
	} else if metricType.Valid() && metricType.IsPercentFamily() && req.MetricValue > 100 {
		errs = append(errs, "metricValue: percent-family metrics must be <= 100")
	}

	if req.Environment != "" && !v.cfg.AllowedEnvironments[req.Environment] {
		errs = append(errs, fmt.Sprintf("environment: %q is not in the allowed set", req.Environment))
	}

	if req.Timestamp != "" {
		ts, err := parseTimestamp(req.Timestamp)
		if err != nil {
			errs = append(errs, "timestamp: "+err.Error())
		} else {
			now := time.Now()
			if ts.Before(now.Add(-v.cfg.TimestampPastWindow)) || ts.After(now.Add(v.cfg.TimestampFutureWindow)) {
				errs = append(errs, "timestamp: outside the accepted window")
			}
		}
	}

	return errs
}
