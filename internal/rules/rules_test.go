package rules

import (
	"context"
	"testing"

	"github.com/monitoring/pipeline/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		threshold float64
		operator  ComparisonOperator
		want      bool
	}{
		{"gt true", 85, 80, OpGT, true},
		{"gt false", 80, 80, OpGT, false},
		{"gte boundary", 80, 80, OpGTE, true},
		{"lt true", 5, 10, OpLT, true},
		{"lte boundary", 10, 10, OpLTE, true},
		{"eq within tolerance", 80.0005, 80, OpEQ, true},
		{"eq outside tolerance", 80.5, 80, OpEQ, false},
		{"unknown operator", 100, 50, ComparisonOperator("WAT"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.value, tt.threshold, tt.operator))
		})
	}
}

func TestStaticStoreOrdersSpecificBeforeWildcard(t *testing.T) {
	store := NewStaticStore([]AlertRule{
		{RuleName: "wild-first", ServiceName: WildcardService, MetricType: codec.MetricCPU, Enabled: true},
		{RuleName: "specific", ServiceName: "payments-api", MetricType: codec.MetricCPU, Enabled: true},
		{RuleName: "wild-second", ServiceName: WildcardService, MetricType: codec.MetricCPU, Enabled: true},
	})

	matched, err := store.FindApplicable(context.Background(), "payments-api", codec.MetricCPU)
	require.NoError(t, err)
	require.Len(t, matched, 3)
	assert.Equal(t, "specific", matched[0].RuleName)
	assert.Equal(t, "wild-first", matched[1].RuleName)
	assert.Equal(t, "wild-second", matched[2].RuleName)
}

func TestStaticStoreFiltersDisabledAndMismatchedMetric(t *testing.T) {
	store := NewStaticStore([]AlertRule{
		{RuleName: "disabled", ServiceName: WildcardService, MetricType: codec.MetricCPU, Enabled: false},
		{RuleName: "other-metric", ServiceName: WildcardService, MetricType: codec.MetricMemory, Enabled: true},
		{RuleName: "other-service", ServiceName: "other-api", MetricType: codec.MetricCPU, Enabled: true},
	})

	matched, err := store.FindApplicable(context.Background(), "payments-api", codec.MetricCPU)
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestDefaultSeedRules(t *testing.T) {
	seeds := DefaultSeedRules()
	require.Len(t, seeds, 3)
	for _, r := range seeds {
		assert.True(t, r.Enabled)
		assert.Equal(t, WildcardService, r.ServiceName)
	}
}
