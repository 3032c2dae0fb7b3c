package controlchain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/control-chain/controlchain/internal/coordinator"
	"github.com/control-chain/controlchain/internal/registry"
	"github.com/control-chain/controlchain/internal/serialport"
	"github.com/control-chain/controlchain/internal/wire"
)

// newTestHandle builds a Handle wired to a real registry and
// coordinator but a never-opened serial port, so API-level behavior
// can be exercised without a physical device. Any write the code
// under test attempts simply fails silently, the same as it would on
// a momentarily disconnected chain.
func newTestHandle(t *testing.T) *Handle {
	t.Helper()
	h := &Handle{
		port:   serialport.New("/dev/null-stub", 115200),
		reg:    registry.New(),
		coord:  coordinator.New(),
		events: make(chan func(), eventQueueCapacity),
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.wg.Add(1)
	go h.dispatchLoop()
	t.Cleanup(func() {
		h.cancel()
		h.wg.Wait()
	})
	return h
}

// connectedTestDevice admits and connects a device directly through
// the registry, bypassing the wire handshake, for API-focused tests.
func connectedTestDevice(t *testing.T, h *Handle, actuators int) *Device {
	t.Helper()
	dev, _, err := h.reg.Admit(wire.HandshakeRequest{URI: "uri:test"}, 0, 0)
	require.NoError(t, err)
	desc := wire.DeviceDescriptor{URI: "uri:test", EnumFrameSize: 4, PageCount: 1}
	for i := 0; i < actuators; i++ {
		desc.Actuators = append(desc.Actuators, wire.Actuator{Name: "actuator", MaxAssignments: 4})
	}
	dev, err = h.reg.Connect(dev.ID, desc)
	require.NoError(t, err)
	return dev
}

// openWindowSoon opens the coordinator's external request window
// shortly after being called, standing in for the scheduler's request
// cycle so a Dispatch-backed API call can proceed in a test.
func openWindowSoon(h *Handle) {
	go func() {
		time.Sleep(5 * time.Millisecond)
		h.coord.OpenWindow()
	}()
}

func TestAssignAllocatesID(t *testing.T) {
	h := newTestHandle(t)
	dev := connectedTestDevice(t, h, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	openWindowSoon(h)
	id, err := h.Assign(ctx, AssignmentInput{DeviceID: dev.ID, ActuatorID: 0, Min: -1, Max: 1}, true)
	require.NoError(t, err)
	require.GreaterOrEqual(t, id, 0)
}

func TestAssignUnknownDeviceFailsWithoutWindow(t *testing.T) {
	h := newTestHandle(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// No connected device and no window opened: Assign should fail
	// fast on the UnknownDevice check, never reaching Dispatch.
	_, err := h.Assign(ctx, AssignmentInput{DeviceID: 9, ActuatorID: 0}, true)
	require.Error(t, err)
}

func TestSetValueThenUnassign(t *testing.T) {
	h := newTestHandle(t)
	dev := connectedTestDevice(t, h, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	openWindowSoon(h)
	id, err := h.Assign(ctx, AssignmentInput{DeviceID: dev.ID, ActuatorID: 0, Min: 0, Max: 10}, true)
	require.NoError(t, err)

	openWindowSoon(h)
	gotID, err := h.SetValue(ctx, SetValueInput{DeviceID: dev.ID, AssignmentID: id, Value: 5})
	require.NoError(t, err)
	require.Equal(t, id, gotID)

	openWindowSoon(h)
	require.NoError(t, h.Unassign(ctx, AssignmentKey{ID: id, DeviceID: dev.ID, PairID: -1}))

	openWindowSoon(h)
	_, err = h.SetValue(ctx, SetValueInput{DeviceID: dev.ID, AssignmentID: id, Value: 1})
	require.Error(t, err, "expected SetValue to fail for an assignment removed by Unassign")
}

func TestDeviceStatusCallbackFiresOnDispatchLoop(t *testing.T) {
	h := newTestHandle(t)
	dev := connectedTestDevice(t, h, 1)

	received := make(chan byte, 1)
	h.SetDeviceStatusCallback(func(d *Device) { received <- d.ID })

	h.postStatus(dev)

	select {
	case id := <-received:
		if id != dev.ID {
			t.Fatalf("callback device id = %d, want %d", id, dev.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("status callback never fired")
	}
}

func TestDeviceListFiltersByStatus(t *testing.T) {
	h := newTestHandle(t)
	dev := connectedTestDevice(t, h, 1)

	registered := h.DeviceList(FilterRegistered)
	found := false
	for _, id := range registered {
		if id == dev.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("DeviceList(FilterRegistered) = %v, want to include %d", registered, dev.ID)
	}
}
