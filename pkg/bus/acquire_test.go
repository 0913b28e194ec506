package bus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pjon-go/pjon/pkg/protocol"
	"github.com/pjon-go/pjon/pkg/strategy/loopback"
)

func TestAcquireIDClaimsFirstFreeCandidate(t *testing.T) {
	wire := loopback.NewBus()
	defer wire.Close()

	// No other device answers any ACQUIRE_ID ping, so every candidate's
	// probe exhausts MAX_ATTEMPTS and the first one tried (1) is claimed.
	a := New(wire.Open(), &fakeClock{}, protocol.Localhost, WithResponseTimeout(0))
	a.SetAcknowledge(true)

	err := a.AcquireID()
	require.NoError(t, err)
	require.Equal(t, protocol.DeviceID(1), a.DeviceID())
}

func TestAcquireIDSkipsACandidateAnOccupantACKs(t *testing.T) {
	wire := loopback.NewBus()
	defer wire.Close()

	sharedBusID := protocol.BusID{1, 2, 3, 4}

	// A real device already sits at candidate 1 on the shared bus and
	// answers every frame addressed to it, including ACQUIRE_ID probes,
	// with a synchronous ACK.
	occupant := newTestBus(wire.Open(), 1, sharedBusID)
	occupant.SetShared(true)
	stop := make(chan struct{})
	go runReceiver(occupant, stop)
	defer close(stop)

	a := New(wire.Open(), &fakeClock{}, sharedBusID)
	a.SetShared(true)

	require.NoError(t, a.AcquireID())
	require.Equal(t, protocol.DeviceID(2), a.DeviceID())
}

func TestAcquireIDPersistsToIdentityStore(t *testing.T) {
	wire := loopback.NewBus()
	defer wire.Close()

	store := &memoryIdentityStore{}
	a := New(wire.Open(), &fakeClock{}, protocol.Localhost, WithIdentityStore(store), WithResponseTimeout(0))

	require.NoError(t, a.AcquireID())
	id, ok, err := store.LoadDeviceID(protocol.Localhost)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a.DeviceID(), id)
}

type memoryIdentityStore struct {
	busID protocol.BusID
	id    protocol.DeviceID
	saved bool
}

func (m *memoryIdentityStore) SaveDeviceID(busID protocol.BusID, id protocol.DeviceID) error {
	m.busID, m.id, m.saved = busID, id, true
	return nil
}

func (m *memoryIdentityStore) LoadDeviceID(busID protocol.BusID) (protocol.DeviceID, bool, error) {
	if !m.saved || !m.busID.Equal(busID) {
		return 0, false, nil
	}
	return m.id, true, nil
}
