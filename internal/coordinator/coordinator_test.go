package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/control-chain/controlchain/internal/ccerr"
	"github.com/control-chain/controlchain/internal/wire"
)

func TestDispatchBlocksUntilWindowOpens(t *testing.T) {
	c := New()
	done := make(chan error, 1)
	started := make(chan struct{})

	go func() {
		close(started)
		done <- c.Dispatch(context.Background(), func() error { return nil })
	}()

	<-started
	select {
	case err := <-done:
		t.Fatalf("Dispatch returned early (err=%v) before OpenWindow was called", err)
	case <-time.After(20 * time.Millisecond):
	}

	c.OpenWindow()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Dispatch did not unblock after OpenWindow")
	}
}

func TestDispatchRespectsContextCancellation(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Dispatch(ctx, func() error { return nil })
	require.Error(t, err)
}

func TestAwaitDescriptorTimesOut(t *testing.T) {
	c := New()
	ctx, cancel := context.WithTimeout(context.Background(), ResponseDeadline*2)
	defer cancel()

	_, err := c.AwaitDescriptor(ctx, 1)
	require.True(t, ccerr.Is(err, ccerr.Timeout))
}

func TestAwaitDescriptorReceivesDelivery(t *testing.T) {
	c := New()
	want := wire.DeviceDescriptor{Label: "pedal"}

	result := make(chan wire.DeviceDescriptor, 1)
	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		desc, err := c.AwaitDescriptor(ctx, 3)
		errCh <- err
		result <- desc
	}()

	time.Sleep(10 * time.Millisecond)
	if !c.DeliverDescriptor(3, want) {
		t.Fatal("DeliverDescriptor reported no waiter, want one pending")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("AwaitDescriptor: %v", err)
	}
	if got := <-result; got.Label != want.Label {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDeliverDescriptorWithoutWaiterIsNoop(t *testing.T) {
	c := New()
	if c.DeliverDescriptor(5, wire.DeviceDescriptor{}) {
		t.Fatal("expected DeliverDescriptor to report no waiter")
	}
}
