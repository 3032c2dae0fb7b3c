// Package coordinator implements control chain's request/response
// coordination: internal (scheduler-issued) descriptor fetches that
// block on a per-device reply with a deadline, and external
// (caller-issued) requests serialised through an explicit capacity-1
// channel handshake rather than the original mutex, condition
// variable, and boolean flag.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/control-chain/controlchain/internal/ccerr"
	"github.com/control-chain/controlchain/internal/wire"
)

const ResponseDeadline = 100 * time.Millisecond

// Coordinator is shared by the scheduler, the receiver, and caller
// goroutines; all of its state is channel- or mutex-guarded.
type Coordinator struct {
	// windowCh is the request_sync handshake, redesigned as a bounded
	// (capacity 1) channel per the port's design notes: the scheduler
	// sends a token during a request cycle's caller sub-slot, and the
	// one external request waiting to dispatch (or, if none is waiting,
	// the next one to arrive) receives it and proceeds. At most one token is ever buffered, so
	// at most one caller is unblocked per cycle.
	windowCh chan struct{}

	// extMu enforces at-most-one-in-flight external request: a caller
	// must fully dispatch (receive the window token, send its frame)
	// before the next caller can begin waiting for a token.
	extMu sync.Mutex

	mu      sync.Mutex
	pending map[byte]chan wire.DeviceDescriptor
}

func New() *Coordinator {
	return &Coordinator{
		windowCh: make(chan struct{}, 1),
		pending:  make(map[byte]chan wire.DeviceDescriptor),
	}
}

// OpenWindow is called by the scheduler once per request cycle to
// admit at most one waiting external caller. It never blocks: if no
// caller is currently waiting, the token stays buffered and the next
// caller to enter Dispatch takes it; while a token is already
// buffered, further calls do nothing.
func (c *Coordinator) OpenWindow() {
	select {
	case c.windowCh <- struct{}{}:
	default:
	}
}

// Dispatch runs send once this goroutine has been granted the
// request window, serialised against any other concurrent callers.
// Idle -> Waiting happens on entry to Dispatch; Waiting -> Sending
// happens on receiving the window token; Sending -> Idle happens when
// send returns.
func (c *Coordinator) Dispatch(ctx context.Context, send func() error) error {
	c.extMu.Lock()
	defer c.extMu.Unlock()

	select {
	case <-c.windowCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return send()
}

// AwaitDescriptor blocks the calling (scheduler) goroutine for up to
// ResponseDeadline waiting for a DEV_DESCRIPTOR reply from deviceID.
// A channel receive has no spurious-wakeup case the way a condition
// variable or semaphore wait does, so the retry-on-spurious-wake loop
// of the original design collapses into a single select here.
func (c *Coordinator) AwaitDescriptor(ctx context.Context, deviceID byte) (wire.DeviceDescriptor, error) {
	ch := make(chan wire.DeviceDescriptor, 1)
	c.mu.Lock()
	c.pending[deviceID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, deviceID)
		c.mu.Unlock()
	}()

	timer := time.NewTimer(ResponseDeadline)
	defer timer.Stop()

	select {
	case desc := <-ch:
		return desc, nil
	case <-timer.C:
		return wire.DeviceDescriptor{}, ccerr.NewDevice("coordinator.await_descriptor", ccerr.Timeout, int(deviceID), "descriptor response deadline exceeded")
	case <-ctx.Done():
		return wire.DeviceDescriptor{}, ctx.Err()
	}
}

// DeliverDescriptor is called by the receiver when a DEV_DESCRIPTOR
// reply arrives; it wakes a pending AwaitDescriptor call for that
// device, if any. It reports whether a waiter was found.
func (c *Coordinator) DeliverDescriptor(deviceID byte, desc wire.DeviceDescriptor) bool {
	c.mu.Lock()
	ch, ok := c.pending[deviceID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- desc:
	default:
	}
	return true
}
