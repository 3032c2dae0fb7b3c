package controlchain

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/control-chain/controlchain/internal/ccerr"
	"github.com/control-chain/controlchain/internal/coordinator"
	"github.com/control-chain/controlchain/internal/registry"
	"github.com/control-chain/controlchain/internal/serialport"
	"github.com/control-chain/controlchain/internal/trace"
)

const eventQueueCapacity = 256

// Handle is a single open control chain connection: one serial port,
// its receiver and scheduler goroutines, the device/assignment
// registry, the request coordinator, and the callback dispatcher.
type Handle struct {
	port  *serialport.Manager
	reg   *registry.Registry
	coord *coordinator.Coordinator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan func()

	mu        sync.Mutex
	statusCb  func(*Device)
	updateCb  func(*UpdateList)

	forceSetup int32 // set by the receiver after a hot-plug reopen
}

// Open stats and opens the serial port (retrying indefinitely past a
// missing device file, per §4.7) and starts the receiver, scheduler,
// and callback-dispatch goroutines. It returns once the initial open
// succeeds, or when ctx is cancelled first.
func Open(ctx context.Context, portPath string, baudRate int) (*Handle, error) {
	h := &Handle{
		port:   serialport.New(portPath, baudRate),
		reg:    registry.New(),
		coord:  coordinator.New(),
		events: make(chan func(), eventQueueCapacity),
	}
	h.ctx, h.cancel = context.WithCancel(ctx)

	if err := h.port.EnsureOpen(h.ctx); err != nil {
		return nil, ccerr.Wrap("open", ccerr.SerialUnavailable, err)
	}

	h.wg.Add(3)
	go h.dispatchLoop()
	go h.receiverLoop()
	go h.schedulerLoop()

	trace.Eventf("controlchain: handle open on %s", portPath)
	return h, nil
}

// Close stops the receiver, scheduler, and callback-dispatch
// goroutines and waits for them to exit.
func (h *Handle) Close() {
	h.cancel()
	h.wg.Wait()
	h.port.Close()
	close(h.events)
}

// SetDeviceStatusCallback registers fn to be invoked (on the callback
// dispatch goroutine, never on the receiver goroutine itself) whenever
// a device's status transitions.
func (h *Handle) SetDeviceStatusCallback(fn func(*Device)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statusCb = fn
}

// SetDataUpdateCallback registers fn to be invoked with each batch of
// value updates reported by a device.
func (h *Handle) SetDataUpdateCallback(fn func(*UpdateList)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updateCb = fn
}

// postStatus and postUpdate queue a callback invocation on the
// dispatch goroutine. Per §5(d) and the design notes, callbacks never
// run on the receiver goroutine, so a callback that calls back into
// the Handle cannot deadlock on the request coordinator.
func (h *Handle) postStatus(dev *Device) {
	h.mu.Lock()
	cb := h.statusCb
	h.mu.Unlock()
	if cb == nil {
		return
	}
	h.postEvent(func() { cb(dev) })
}

func (h *Handle) postUpdate(u *UpdateList) {
	h.mu.Lock()
	cb := h.updateCb
	h.mu.Unlock()
	if cb == nil {
		return
	}
	h.postEvent(func() { cb(u) })
}

func (h *Handle) postEvent(fn func()) {
	select {
	case h.events <- fn:
	case <-h.ctx.Done():
	}
}

func (h *Handle) dispatchLoop() {
	defer h.wg.Done()
	for {
		select {
		case fn, ok := <-h.events:
			if !ok {
				return
			}
			fn()
		case <-h.ctx.Done():
			// drain any already-queued events before exiting so a
			// status callback fired just before shutdown is not lost
			for {
				select {
				case fn, ok := <-h.events:
					if !ok {
						return
					}
					fn()
				default:
					return
				}
			}
		}
	}
}

func (h *Handle) requestSetup() {
	atomic.StoreInt32(&h.forceSetup, 1)
}

func (h *Handle) consumeSetupRequest() bool {
	return atomic.CompareAndSwapInt32(&h.forceSetup, 1, 0)
}
