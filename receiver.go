package controlchain

import (
	"github.com/control-chain/controlchain/internal/trace"
	"github.com/control-chain/controlchain/internal/wire"
)

// receiverLoop owns the serial port's read side: it reopens the port
// whenever it is disabled (hot-plug recovery), runs the framing state
// machine, and dispatches each well-formed frame.
func (h *Handle) receiverLoop() {
	defer h.wg.Done()

	wasDisabled := false
	for {
		if h.ctx.Err() != nil {
			return
		}

		if !h.port.Enabled() {
			wasDisabled = true
			if err := h.port.EnsureOpen(h.ctx); err != nil {
				return
			}
			trace.Eventf("controlchain: serial port reopened")
		}
		if wasDisabled {
			h.requestSetup()
			wasDisabled = false
		}

		port, ok := h.port.Port()
		if !ok {
			continue
		}

		decoder := wire.NewDecoder(port)
		frame, err := decoder.ReadFrame()
		if err != nil {
			trace.Eventf("controlchain: receiver read failed: %v", err)
			h.port.Disable()
			continue
		}

		h.handleFrame(frame)
	}
}

func (h *Handle) handleFrame(frame wire.Frame) {
	if frame.DeviceID != 0 {
		h.reg.ResetTimeout(frame.DeviceID)
	}

	switch frame.Command {
	case wire.Handshake:
		h.handleHandshake(frame)
	case wire.DevDescriptor:
		h.handleDescriptorReply(frame)
	case wire.DataUpdate:
		h.handleDataUpdate(frame)
	case wire.RequestControlPage:
		h.handleControlPageRequest(frame)
	default:
		trace.Framef("controlchain: ignoring unsolicited command %s", frame.Command)
	}
}

func (h *Handle) handleHandshake(frame wire.Frame) {
	req, err := wire.DecodeHandshakeRequest(frame.Data)
	if err != nil {
		trace.Eventf("controlchain: malformed handshake: %v", err)
		return
	}

	dev, status, err := h.reg.Admit(req, ProtocolMajor, ProtocolMinor)
	if err != nil {
		trace.Eventf("controlchain: handshake admission failed: %v", err)
		return
	}

	var deviceID byte
	if dev != nil {
		deviceID = dev.ID
	}

	reply := wire.EncodeHandshakeReply(wire.HandshakeReply{
		RandomID: req.RandomID,
		Status:   status,
		DeviceID: deviceID,
	})
	buf, err := wire.Encode(wire.Frame{DeviceID: deviceID, Command: wire.Handshake, Data: reply})
	if err != nil {
		return
	}
	if err := h.port.Write(buf); err != nil {
		trace.Eventf("controlchain: handshake reply write failed: %v", err)
		return
	}

	if dev != nil {
		trace.Eventf("controlchain: device %d handshaken (uri=%s channel=%d status=%d)", dev.ID, dev.URI, dev.Channel, status)
	}
}

func (h *Handle) handleDescriptorReply(frame wire.Frame) {
	desc, err := wire.DecodeDeviceDescriptor(frame.Data)
	if err != nil {
		trace.Eventf("controlchain: malformed descriptor from device %d: %v", frame.DeviceID, err)
		return
	}
	h.coord.DeliverDescriptor(frame.DeviceID, desc)
}

func (h *Handle) handleDataUpdate(frame wire.Frame) {
	dev, ok := h.reg.Get(frame.DeviceID)
	if !ok {
		return
	}
	updates, err := h.reg.ParseUpdateList(dev, frame.Data)
	if err != nil {
		trace.Eventf("controlchain: malformed data update from device %d: %v", frame.DeviceID, err)
		return
	}
	h.postUpdate(updates)
}

func (h *Handle) handleControlPageRequest(frame wire.Frame) {
	dev, ok := h.reg.Get(frame.DeviceID)
	if !ok {
		return
	}
	page, err := wire.DecodeRequestControlPage(frame.Data)
	if err != nil {
		return
	}

	onPage := h.reg.SwitchPage(dev, page)
	for _, a := range onPage {
		h.pushAssignment(dev, a, false)
	}
}

// pushAssignment encodes and writes an ASSIGNMENT frame for a.
// newAssignment distinguishes a first-time bind from a page-switch
// re-push at the call site; the wire payload is identical either way.
func (h *Handle) pushAssignment(dev *Device, a *Assignment, newAssignment bool) {
	trace.Framef("controlchain: pushing assignment %d on device %d (new=%v)", a.ID, dev.ID, newAssignment)
	items := enumItemsInWindow(a)
	payload := wire.AssignmentPayload{
		ID:         byte(a.ID),
		ActuatorID: a.ActuatorID,
		Label:      a.Label,
		Value:      a.Value,
		Min:        a.Min,
		Max:        a.Max,
		Default:    a.Default,
		Mode:       a.Mode,
		Steps:      a.Steps,
		Unit:       a.Unit,
		ListIndex:  byte(a.ListIndex),
		ListCount:  byte(len(items)),
		Items:      items,
	}
	buf, err := wire.Encode(wire.Frame{DeviceID: dev.ID, Command: wire.Assignment, Data: wire.EncodeAssignment(payload)})
	if err != nil {
		return
	}
	h.port.Write(buf)
}

// enumItemsInWindow returns the slice of a.Items currently inside
// [a.FrameMin, a.FrameMax], or all items for non-OPTIONS assignments.
func enumItemsInWindow(a *Assignment) []wire.EnumItem {
	if a.Mode&ModeOptions == 0 || len(a.Items) == 0 {
		return a.Items
	}
	min, max := a.FrameMin, a.FrameMax
	if min < 0 {
		min = 0
	}
	if max >= len(a.Items) {
		max = len(a.Items) - 1
	}
	if min > max {
		return nil
	}
	return a.Items[min : max+1]
}
