package loopback

import (
	"testing"

	"github.com/pjon-go/pjon/pkg/strategy"
	"github.com/stretchr/testify/require"
)

func TestEndpointsExchangeBytes(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a := bus.Open()
	b := bus.Open()

	require.True(t, a.CanStart())
	a.SendByte(0x42)
	require.Equal(t, 0x42, b.ReceiveByte())
	require.Equal(t, strategy.NoByte, a.ReceiveByte())
}

func TestThirdEndpointAlsoSeesTraffic(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a := bus.Open()
	b := bus.Open()
	c := bus.Open()

	a.SendByte(7)
	require.Equal(t, 7, b.ReceiveByte())
	require.Equal(t, 7, c.ReceiveByte())
}

func TestResponseChannelIsSeparate(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a := bus.Open()
	b := bus.Open()

	b.SendResponse(6)
	require.Equal(t, 6, a.ReceiveResponse())
	require.Equal(t, strategy.NoByte, a.ReceiveByte())
}

func TestCloseDrainsToNoByte(t *testing.T) {
	bus := NewBus()
	a := bus.Open()
	bus.Close()
	require.Equal(t, strategy.NoByte, a.ReceiveByte())
	require.Equal(t, strategy.NoByte, a.ReceiveResponse())
}
