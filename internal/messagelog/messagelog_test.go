package messagelog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers("a:9092, b:9092"))
	assert.Equal(t, []string{"localhost:19092"}, ParseBrokers("localhost:19092"))
	assert.Nil(t, ParseBrokers(""))
	assert.Nil(t, ParseBrokers("  , , "))
}
