package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeLocalUnicastWithAck(t *testing.T) {
	// S1: our id=12, payload "@" to id=12, ack requested, no bus/sender info.
	header := HeaderFlags(AckRequestBit)
	frame, err := Encode(DeviceID(12), []byte{'@'}, header, BusID{}, BusID{}, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0x0C, 0x05, 0x04, 0x40, 0x82}, frame)
	require.Equal(t, byte(0), Of(frame))
}

func TestEncodeSharedBroadcastWithSenderInfo(t *testing.T) {
	// S2: our id=5, bus 127.0.0.1, broadcast "HI" to bus 10.0.0.1.
	header := HeaderFlags(ModeBit | SenderInfoBit)
	receiverBus := BusID{10, 0, 0, 1}
	senderBus := BusID{127, 0, 0, 1}
	frame, err := Encode(Broadcast, []byte("HI"), header, receiverBus, senderBus, DeviceID(5))
	require.NoError(t, err)

	require.Equal(t, byte(0), frame[0])
	require.Equal(t, int(frame[1]), len(frame), "total_length must describe the fully prepared frame")
	require.Equal(t, byte(ModeBit|SenderInfoBit), frame[2])
	require.Equal(t, []byte{10, 0, 0, 1}, frame[3:7])
	require.Equal(t, []byte{127, 0, 0, 1}, frame[7:11])
	require.Equal(t, byte(5), frame[11])
	require.Equal(t, []byte("HI"), frame[12:14])
	require.Equal(t, byte(0), Of(frame))

	payload, info := Decode(frame)
	require.Equal(t, []byte("HI"), payload)
	require.Equal(t, header, info.Header)
	require.Equal(t, receiverBus, info.ReceiverBusID)
	require.Equal(t, senderBus, info.SenderBusID)
	require.Equal(t, DeviceID(5), info.SenderID)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		header HeaderFlags
	}{
		{"bare", HeaderFlags(0)},
		{"sender-only", HeaderFlags(SenderInfoBit)},
		{"shared-only", HeaderFlags(ModeBit)},
		{"shared-with-sender", HeaderFlags(ModeBit | SenderInfoBit)},
		{"ack-request", HeaderFlags(AckRequestBit)},
	}
	payload := []byte("hello, bus")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := Encode(DeviceID(42), payload, tc.header, BusID{1, 1, 1, 1}, BusID{2, 2, 2, 2}, DeviceID(7))
			require.NoError(t, err)
			require.Equal(t, byte(0), Of(frame), "a valid frame's CRC must fold to zero")

			got, info := Decode(frame)
			require.Equal(t, payload, got)
			require.Equal(t, tc.header, info.Header)
			require.Equal(t, DeviceID(42), info.ReceiverID)
		})
	}
}

func TestEncodeContentTooLong(t *testing.T) {
	big := make([]byte, PacketMaxLength)
	_, err := Encode(DeviceID(1), big, HeaderFlags(0), BusID{}, BusID{}, 0)
	require.ErrorIs(t, err, ErrContentTooLong)
}

func TestCRC8TableLess(t *testing.T) {
	for _, data := range [][]byte{
		{},
		{0x00},
		{0xFF},
		{0x0C, 0x05, 0x04, 0x40},
	} {
		crc := Of(data)
		withCRC := append(append([]byte{}, data...), crc)
		require.Equal(t, byte(0), Of(withCRC))
	}
}
