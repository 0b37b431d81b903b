package streamhub

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCPUGuardDisabledByNonPositiveThreshold(t *testing.T) {
	g := newCPUGuard(0, zerolog.Nop())
	g.currentPercent.Store(99.9)
	assert.False(t, g.overloaded())
}

func TestCPUGuardOverloadedAboveThreshold(t *testing.T) {
	g := newCPUGuard(90, zerolog.Nop())

	g.currentPercent.Store(50.0)
	assert.False(t, g.overloaded())

	g.currentPercent.Store(95.0)
	assert.True(t, g.overloaded())
}
