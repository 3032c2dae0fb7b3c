package registry

import (
	"encoding/binary"
	"math"

	"github.com/control-chain/controlchain/internal/wire"
)

// UpdateData is one (assignment, value) pair reported by a device.
type UpdateData struct {
	AssignmentID int
	Value        float32
}

// UpdateList is a batch of updates from a single device in one frame,
// plus an opaque copy of the raw payload for pass-through to IPC
// clients (spec ownership: devices/assignments owned by the registry;
// the raw buffer is owned by the UpdateList itself).
type UpdateList struct {
	DeviceID byte
	Updates  []UpdateData
	RawData  []byte
}

// ParseUpdateList decodes a DATA_UPDATE payload against dev's current
// assignment table. When a reported actuator is the second half of an
// actuator group, the reported assignment id is rewritten to the id
// bound to the group's first actuator, so grouped controls always
// report under one stable assignment id.
func (r *Registry) ParseUpdateList(dev *Device, raw []byte) (*UpdateList, error) {
	entries, err := wire.DecodeDataUpdate(raw)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	updates := make([]UpdateData, 0, len(entries))
	rebuilt := make([]byte, 0, 1+5*len(entries))
	rebuilt = append(rebuilt, 0)

	for _, e := range entries {
		id := int(e.AssignmentID)
		if id < 0 || id >= MaxAssignmentsPerDevice || dev.Assignments[id] == nil {
			continue
		}
		a := dev.Assignments[id]
		resolvedID := r.resolveGroupedID(dev, a)

		updates = append(updates, UpdateData{AssignmentID: resolvedID, Value: e.Value})

		var valBuf [4]byte
		binary.LittleEndian.PutUint32(valBuf[:], math.Float32bits(e.Value))
		rebuilt = append(rebuilt, byte(resolvedID))
		rebuilt = append(rebuilt, valBuf[:]...)
	}
	rebuilt[0] = byte(len(updates))

	return &UpdateList{DeviceID: dev.ID, Updates: updates, RawData: rebuilt}, nil
}

// resolveGroupedID returns a.ID unchanged unless a.ActuatorID is the
// second actuator of one of dev's groups, in which case it returns the
// id of whichever assignment currently occupies the group's first
// actuator.
func (r *Registry) resolveGroupedID(dev *Device, a *Assignment) int {
	for _, g := range dev.Groups {
		if g.Second != a.ActuatorID {
			continue
		}
		for _, other := range dev.Assignments {
			if other != nil && other.ActuatorID == g.First {
				return other.ID
			}
		}
	}
	return a.ID
}
