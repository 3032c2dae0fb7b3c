package controlchain

import (
	"context"
	"encoding/json"

	"github.com/control-chain/controlchain/internal/ccerr"
	"github.com/control-chain/controlchain/internal/wire"
)

// Assign binds a into a free slot on its target actuator. new
// controls whether this is a first-time push (ASSIGNMENT with a fresh
// binding) versus a re-push after a page switch; callers invoking this
// directly always pass true. It returns the allocated assignment id,
// or -1 and an error (CapacityExhausted, UnknownDevice,
// UnknownAssignment) if the bind failed.
func (h *Handle) Assign(ctx context.Context, in AssignmentInput, new bool) (int, error) {
	dev, ok := h.reg.Get(in.DeviceID)
	if !ok {
		return -1, ccerr.NewDevice("assign", ccerr.UnknownDevice, int(in.DeviceID), "device not registered")
	}

	var result struct {
		id int
	}
	err := h.coord.Dispatch(ctx, func() error {
		res, addErr := h.reg.Add(dev, in)
		if addErr != nil {
			return addErr
		}
		if res.ShouldPush {
			h.pushAssignment(dev, res.Assignment, new)
		}
		result.id = res.Assignment.ID
		return nil
	})
	if err != nil {
		return -1, err
	}
	return result.id, nil
}

// AssignGroup binds two assignments back-to-back onto a coupled
// actuator pair: primary carries REVERSE, secondary does not, and
// their pair ids reference each other (§4.5 "grouped assignments").
// This extends the language-neutral public API with a dedicated entry
// point for the two-assignments-at-once case spec.md describes in
// prose.
func (h *Handle) AssignGroup(ctx context.Context, primary, secondary AssignmentInput) (int, int, error) {
	if primary.DeviceID != secondary.DeviceID {
		return -1, -1, ccerr.New("assign_group", ccerr.UnknownDevice, "grouped assignments must target the same device")
	}
	dev, ok := h.reg.Get(primary.DeviceID)
	if !ok {
		return -1, -1, ccerr.NewDevice("assign_group", ccerr.UnknownDevice, int(primary.DeviceID), "device not registered")
	}

	var ids [2]int
	err := h.coord.Dispatch(ctx, func() error {
		primRes, secRes, addErr := h.reg.AddGroup(dev, primary, secondary)
		if addErr != nil {
			return addErr
		}
		if primRes.ShouldPush {
			h.pushAssignment(dev, primRes.Assignment, true)
		}
		if secRes.ShouldPush {
			h.pushAssignment(dev, secRes.Assignment, true)
		}
		ids[0], ids[1] = primRes.Assignment.ID, secRes.Assignment.ID
		return nil
	})
	if err != nil {
		return -1, -1, err
	}
	return ids[0], ids[1], nil
}

// Unassign removes key's assignment, cascading to its pair (if any),
// and sends UNASSIGNMENT for whichever half(es) were active on the
// device's current page.
func (h *Handle) Unassign(ctx context.Context, key AssignmentKey) error {
	return h.coord.Dispatch(ctx, func() error {
		results, err := h.reg.Remove(key)
		if err != nil {
			return err
		}
		for _, r := range results {
			if !r.ShouldNotify {
				continue
			}
			buf, encErr := wire.Encode(wire.Frame{
				DeviceID: key.DeviceID,
				Command:  wire.Unassignment,
				Data:     wire.EncodeUnassignment(wire.UnassignmentPayload{ID: byte(r.ID)}),
			})
			if encErr != nil {
				continue
			}
			h.port.Write(buf)
		}
		return nil
	})
}

// SetValue updates an assignment's current value and, if the device is
// showing that assignment's page, pushes SET_VALUE (or, for every
// OPTIONS-mode assignment, UPDATE_ENUMERATION with the recomputed window).
// It returns the assignment id, or -1 on UnknownDevice/UnknownAssignment.
func (h *Handle) SetValue(ctx context.Context, in SetValueInput) (int, error) {
	var id int
	err := h.coord.Dispatch(ctx, func() error {
		res, setErr := h.reg.SetValue(in)
		if setErr != nil {
			return setErr
		}
		id = res.Assignment.ID
		if !res.ShouldPush {
			return nil
		}

		if res.Assignment.Mode&ModeOptions != 0 {
			buf, encErr := wire.Encode(wire.Frame{
				DeviceID: in.DeviceID,
				Command:  wire.UpdateEnumeration,
				Data: wire.EncodeUpdateEnumeration(wire.UpdateEnumerationPayload{
					AssignmentID: byte(res.Assignment.ID),
					ActuatorID:   res.Assignment.ActuatorID,
					ListIndex:    byte(res.Assignment.ListIndex),
					Items:        enumItemsInWindow(res.Assignment),
				}),
			})
			if encErr == nil {
				h.port.Write(buf)
			}
			if res.Assignment.AssignmentPairID >= 0 {
				h.pushPairEnumeration(in.DeviceID, res.Assignment)
			}
			return nil
		}

		buf, encErr := wire.Encode(wire.Frame{
			DeviceID: in.DeviceID,
			Command:  wire.SetValue,
			Data: wire.EncodeSetValue(wire.SetValuePayload{
				AssignmentID: byte(res.Assignment.ID),
				ActuatorID:   res.Assignment.ActuatorID,
				Value:        res.Assignment.Value,
			}),
		})
		if encErr == nil {
			h.port.Write(buf)
		}
		return nil
	})
	if err != nil {
		return -1, err
	}
	return id, nil
}

func (h *Handle) pushPairEnumeration(deviceID byte, a *Assignment) {
	dev, ok := h.reg.Get(deviceID)
	if !ok || a.AssignmentPairID < 0 || a.AssignmentPairID >= MaxAssignmentsPerDevice {
		return
	}
	pair := dev.Assignments[a.AssignmentPairID]
	if pair == nil {
		return
	}
	buf, err := wire.Encode(wire.Frame{
		DeviceID: deviceID,
		Command:  wire.UpdateEnumeration,
		Data: wire.EncodeUpdateEnumeration(wire.UpdateEnumerationPayload{
			AssignmentID: byte(pair.ID),
			ActuatorID:   pair.ActuatorID,
			ListIndex:    byte(pair.ListIndex),
			Items:        enumItemsInWindow(pair),
		}),
	})
	if err == nil {
		h.port.Write(buf)
	}
}

// SwitchPage updates a device's active page and re-pushes every
// assignment bound to the new page.
func (h *Handle) SwitchPage(ctx context.Context, deviceID byte, page byte) error {
	dev, ok := h.reg.Get(deviceID)
	if !ok {
		return ccerr.NewDevice("switch_page", ccerr.UnknownDevice, int(deviceID), "device not registered")
	}
	return h.coord.Dispatch(ctx, func() error {
		onPage := h.reg.SwitchPage(dev, page)
		for _, a := range onPage {
			h.pushAssignment(dev, a, false)
		}
		return nil
	})
}

// DisableDevice sends DEV_CONTROL/DISABLE to deviceID.
func (h *Handle) DisableDevice(ctx context.Context, deviceID byte) error {
	if _, ok := h.reg.Get(deviceID); !ok {
		return ccerr.NewDevice("disable_device", ccerr.UnknownDevice, int(deviceID), "device not registered")
	}
	return h.coord.Dispatch(ctx, func() error {
		buf, err := wire.Encode(wire.Frame{DeviceID: deviceID, Command: wire.DevControl, Data: wire.EncodeDevControl(wire.DevDisable)})
		if err != nil {
			return err
		}
		return h.port.Write(buf)
	})
}

// DeviceList returns the ids of devices matching filter.
func (h *Handle) DeviceList(filter ListFilter) []byte {
	return h.reg.List(filter)
}

// DeviceByID returns the device registered under id, if any.
func (h *Handle) DeviceByID(id byte) (*Device, bool) {
	return h.reg.Get(id)
}

// DeviceCountWithURI returns how many currently registered devices
// share uri.
func (h *Handle) DeviceCountWithURI(uri string) int {
	return h.reg.CountWithURI(uri)
}

type deviceDescriptorJSON struct {
	ID       byte   `json:"id"`
	URI      string `json:"uri"`
	Label    string `json:"label"`
	Channel  int    `json:"channel"`
	Status   string `json:"status"`
	PageCount byte  `json:"page_count"`
	CurrentPage byte `json:"current_page"`
	Actuators []actuatorJSON `json:"actuators"`
}

type actuatorJSON struct {
	Index          byte   `json:"index"`
	Name           string `json:"name"`
	Modes          uint32 `json:"modes"`
	MaxAssignments byte   `json:"max_assignments"`
}

// DeviceDescriptorJSON renders a device's descriptor as JSON, for the
// IPC layer (spec §6: "for the IPC layer").
func (h *Handle) DeviceDescriptorJSON(id byte) (string, error) {
	dev, ok := h.reg.Get(id)
	if !ok {
		return "", ccerr.NewDevice("device_descriptor_json", ccerr.UnknownDevice, int(id), "device not registered")
	}

	out := deviceDescriptorJSON{
		ID:          dev.ID,
		URI:         dev.URI,
		Label:       dev.Label,
		Channel:     dev.Channel,
		Status:      dev.Status.String(),
		PageCount:   dev.PageCount,
		CurrentPage: dev.CurrentPage,
	}
	for _, a := range dev.Actuators {
		out.Actuators = append(out.Actuators, actuatorJSON{
			Index:          a.Index,
			Name:           a.Name,
			Modes:          a.Modes,
			MaxAssignments: a.MaxAssignments,
		})
	}

	buf, err := json.Marshal(out)
	if err != nil {
		return "", ccerr.Wrap("device_descriptor_json", ccerr.FrameCorrupt, err)
	}
	return string(buf), nil
}
