package rules

import "math"

// eqTolerance is the absolute tolerance for the EQ operator (§4.5).
const eqTolerance = 1e-3

// Evaluate applies operator to (value, threshold). It is pure: no state,
// no side effects, and it returns false for an unknown operator rather
// than erroring (§7 — "rule evaluator bad input: return false, log").
func Evaluate(value, threshold float64, operator ComparisonOperator) bool {
	switch operator {
	case OpGT:
		return value > threshold
	case OpGTE:
		return value >= threshold
	case OpLT:
		return value < threshold
	case OpLTE:
		return value <= threshold
	case OpEQ:
		return math.Abs(value-threshold) < eqTolerance
	default:
		return false
	}
}
