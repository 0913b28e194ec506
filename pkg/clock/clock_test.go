package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSystemMicrosIsMonotonic(t *testing.T) {
	c := NewSystem()
	a := c.Micros()
	c.Sleep(2 * time.Millisecond)
	b := c.Micros()
	require.Greater(t, b, a)
}

func TestSystemRandBounded(t *testing.T) {
	c := NewSystem()
	require.Equal(t, uint32(0), c.Rand(0))
	for i := 0; i < 100; i++ {
		v := c.Rand(16)
		require.Less(t, v, uint32(16))
	}
}
