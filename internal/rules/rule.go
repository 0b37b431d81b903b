// Package rules holds AlertRule, the Rule Store query (§4.4), and the pure
// rule Evaluator (§4.5).
package rules

import "github.com/monitoring/pipeline/internal/codec"

// ComparisonOperator is the rule's threshold comparison.
type ComparisonOperator string

const (
	OpGT  ComparisonOperator = "GT"
	OpGTE ComparisonOperator = "GTE"
	OpLT  ComparisonOperator = "LT"
	OpLTE ComparisonOperator = "LTE"
	OpEQ  ComparisonOperator = "EQ"
)

// WildcardService matches any service name.
const WildcardService = "*"

// AlertRule is an operator-defined threshold condition on a
// (service, metricType) scope.
type AlertRule struct {
	RuleName           string
	ServiceName         string // explicit name, or WildcardService
	MetricType          codec.MetricType
	ThresholdValue      float64
	ComparisonOperator  ComparisonOperator
	DurationMinutes     int
	Severity            codec.Severity
	Enabled             bool
	Description         string

	// insertionOrder breaks ties among rules with equal specificity,
	// preserving provisioning order (§4.4).
	insertionOrder int
}
