package controlchain

import (
	"context"
	"sync"
	"time"

	"github.com/control-chain/controlchain/internal/ccerr"
	"github.com/control-chain/controlchain/internal/trace"
	"github.com/control-chain/controlchain/internal/wire"
)

const (
	syncPeriod        = 10 * time.Millisecond
	handshakePeriod    = 20 // cycles
	requestPeriod      = 2  // cycles
	descriptorDeadline = 100 * time.Millisecond
)

// schedulerLoop paces chain sync frames, ages devices, and runs the
// request cycle: descriptor fan-out when any device lacks one,
// otherwise opening the external-request window.
func (h *Handle) schedulerLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(syncPeriod)
	defer ticker.Stop()

	var cycle uint64
	first := true

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}

		for _, dev := range h.reg.Tick() {
			trace.Eventf("controlchain: device %d timed out, evicting", dev.ID)
			h.postStatus(dev)
		}

		kind := wire.SyncRegular
		switch {
		case first || h.consumeSetupRequest():
			kind = wire.SyncSetup
			first = false
		case cycle%handshakePeriod == 0:
			kind = wire.SyncHandshake
		}

		isRequestCycle := kind == wire.SyncRegular && cycle%requestPeriod == 0
		if isRequestCycle {
			h.runRequestCycle()
		}

		h.emitSync(kind)
		cycle++
	}
}

func (h *Handle) emitSync(kind wire.SyncKind) {
	buf, err := wire.Encode(wire.Frame{DeviceID: 0, Command: wire.ChainSync, Data: wire.EncodeChainSync(kind)})
	if err != nil {
		return
	}
	if err := h.port.Write(buf); err != nil {
		trace.Eventf("controlchain: sync write failed: %v", err)
	}
}

// runRequestCycle implements one request sub-slot: if any device is
// still awaiting its descriptor, fan descriptor requests out to all of
// them concurrently, each with its own deadline (the port's resolution
// of the original design's mutex-held sequential wait, which could
// starve caller requests when many devices were present). Otherwise
// open the external-request window for one pending caller.
func (h *Handle) runRequestCycle() {
	missing := h.reg.WithoutDescriptor()
	if len(missing) == 0 {
		h.coord.OpenWindow()
		return
	}

	var wg sync.WaitGroup
	for _, id := range missing {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			h.fetchDescriptor(id)
		}(id)
	}
	wg.Wait()
}

func (h *Handle) fetchDescriptor(id byte) {
	buf, err := wire.Encode(wire.Frame{DeviceID: id, Command: wire.DevDescriptor, Data: wire.EncodeDescriptorRequest(wire.DescriptorReq)})
	if err != nil {
		return
	}
	if err := h.port.Write(buf); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, descriptorDeadline)
	defer cancel()

	desc, err := h.coord.AwaitDescriptor(ctx, id)
	if err != nil {
		if ccerr.Is(err, ccerr.Timeout) {
			trace.Eventf("controlchain: descriptor timeout for device %d", id)
		}
		return
	}

	dev, err := h.reg.Connect(id, desc)
	if err != nil {
		return
	}

	ackBuf, err := wire.Encode(wire.Frame{DeviceID: id, Command: wire.DevDescriptor, Data: wire.EncodeDescriptorRequest(wire.DescriptorAck)})
	if err == nil {
		h.port.Write(ackBuf)
	}

	trace.Eventf("controlchain: device %d connected (%s)", id, dev.URI)
	h.postStatus(dev)
}
