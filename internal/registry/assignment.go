package registry

import (
	"github.com/control-chain/controlchain/internal/ccerr"
	"github.com/control-chain/controlchain/internal/wire"
)

// Mode bitmask values, carried verbatim from the wire protocol's
// assignment mode field.
const (
	ModeToggle      uint32 = 0x001
	ModeTrigger     uint32 = 0x002
	ModeOptions     uint32 = 0x004
	ModeTapTempo    uint32 = 0x008
	ModeReal        uint32 = 0x010
	ModeInteger     uint32 = 0x020
	ModeLogarithmic uint32 = 0x040
	ModeColoured    uint32 = 0x100
	ModeMomentary   uint32 = 0x200
	ModeReverse     uint32 = 0x400
	ModeGroup       uint32 = 0x800
)

// Assignment binds one logical control to one actuator.
type Assignment struct {
	ID         int
	DeviceID   byte
	ActuatorID byte
	Label      string
	Value      float32
	Min        float32
	Max        float32
	Default    float32
	Mode       uint32
	Steps      byte
	Unit       string
	Items      []wire.EnumItem

	// ActuatorPairID/AssignmentPairID are -1 when the assignment is
	// not part of a grouped pair.
	ActuatorPairID    int
	AssignmentPairID  int

	ListIndex int
	FrameMin  int
	FrameMax  int

	ActuatorPageID byte
}

// AssignmentInput carries a caller's request to bind a control; ID is
// ignored on input and set by Add.
type AssignmentInput struct {
	DeviceID   byte
	ActuatorID byte
	Label      string
	Value      float32
	Min        float32
	Max        float32
	Default    float32
	Mode       uint32
	Steps      byte
	Unit       string
	Items      []wire.EnumItem
}

// AssignmentKey identifies an assignment to remove, optionally with
// its pair (-1 if none or unknown).
type AssignmentKey struct {
	ID       int
	DeviceID byte
	PairID   int
}

// AddResult reports what Add did, for the caller to decide whether to
// push an ASSIGNMENT frame now.
type AddResult struct {
	Assignment  *Assignment
	ShouldPush  bool
}

// Add binds in into a free assignment slot on dev's actuator. It
// enforces the actuator's per-assignment quota, deep-copies label,
// unit, and items, computes the enumeration window for OPTIONS-mode
// assignments, overrides Value for MOMENTARY assignments, and
// computes actuator_page_id. It does not itself send any frame; the
// caller pushes one only when ShouldPush is true (the device is
// currently showing the assigned actuator's page).
func (r *Registry) Add(dev *Device, in AssignmentInput) (AddResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	actuator := dev.actuatorByIndex(in.ActuatorID)
	if actuator == nil {
		return AddResult{}, ccerr.NewDevice("registry.add", ccerr.UnknownAssignment, int(dev.ID), "unknown actuator")
	}
	if actuator.AssignmentsCount >= actuator.MaxAssignments {
		return AddResult{}, ccerr.NewDevice("registry.add", ccerr.CapacityExhausted, int(dev.ID), "actuator assignment quota exhausted")
	}

	slot := -1
	for i := 0; i < MaxAssignmentsPerDevice; i++ {
		if dev.Assignments[i] == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return AddResult{}, ccerr.NewDevice("registry.add", ccerr.CapacityExhausted, int(dev.ID), "assignment table full")
	}

	items := make([]wire.EnumItem, len(in.Items))
	copy(items, in.Items)

	a := &Assignment{
		ID:               slot,
		DeviceID:         dev.ID,
		ActuatorID:       in.ActuatorID,
		Label:            in.Label,
		Value:            in.Value,
		Min:              in.Min,
		Max:              in.Max,
		Default:          in.Default,
		Mode:             in.Mode,
		Steps:            in.Steps,
		Unit:             in.Unit,
		Items:            items,
		ActuatorPairID:   -1,
		AssignmentPairID: -1,
		ActuatorPageID:   in.ActuatorID / byte(dev.slotsPerPage()),
	}

	if a.Mode&ModeMomentary != 0 {
		if a.Mode&ModeReverse != 0 {
			a.Value = a.Max
		} else {
			a.Value = a.Min
		}
	}

	if a.Mode&ModeOptions != 0 {
		a.ListIndex, a.FrameMin, a.FrameMax = enumWindow(int(a.Value), int(dev.EnumFrameSize), len(a.Items))
	}

	dev.Assignments[slot] = a
	actuator.AssignmentsCount++

	return AddResult{Assignment: a, ShouldPush: dev.CurrentPage == a.ActuatorPageID}, nil
}

// AddGroup creates two back-to-back assignments on a coupled actuator
// pair: the primary carries REVERSE, the secondary does not, and their
// AssignmentPairID fields reference each other.
func (r *Registry) AddGroup(dev *Device, primary, secondary AssignmentInput) (AddResult, AddResult, error) {
	primary.Mode |= ModeGroup | ModeReverse
	secondary.Mode = (secondary.Mode | ModeGroup) &^ ModeReverse

	primRes, err := r.Add(dev, primary)
	if err != nil {
		return AddResult{}, AddResult{}, err
	}
	secRes, err := r.Add(dev, secondary)
	if err != nil {
		r.Remove(AssignmentKey{ID: primRes.Assignment.ID, DeviceID: dev.ID, PairID: -1})
		return AddResult{}, AddResult{}, err
	}

	r.mu.Lock()
	primRes.Assignment.AssignmentPairID = secRes.Assignment.ID
	primRes.Assignment.ActuatorPairID = int(secRes.Assignment.ActuatorID)
	secRes.Assignment.AssignmentPairID = primRes.Assignment.ID
	secRes.Assignment.ActuatorPairID = int(primRes.Assignment.ActuatorID)
	r.mu.Unlock()

	return primRes, secRes, nil
}

// RemoveResult lists the assignments actually freed (one, or two for a
// cascaded pair removal) and whether each was active on the device's
// current page and therefore needs an UNASSIGNMENT frame.
type RemoveResult struct {
	ID           int
	ShouldNotify bool
}

// Remove frees key's assignment slot and, if the assignment was paired
// (either via key.PairID or its own AssignmentPairID), cascades to
// remove the other half too.
func (r *Registry) Remove(key AssignmentKey) ([]RemoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev := r.devices[key.DeviceID]
	if dev == nil {
		return nil, ccerr.NewDevice("registry.remove", ccerr.UnknownDevice, int(key.DeviceID), "device not registered")
	}
	if key.ID < 0 || key.ID >= MaxAssignmentsPerDevice || dev.Assignments[key.ID] == nil {
		return nil, ccerr.NewDevice("registry.remove", ccerr.UnknownAssignment, int(key.DeviceID), "unknown assignment")
	}

	var results []RemoveResult
	pairID := key.PairID
	a := dev.Assignments[key.ID]
	if pairID < 0 {
		pairID = a.AssignmentPairID
	}
	results = append(results, r.removeOne(dev, a))

	if pairID >= 0 && pairID < MaxAssignmentsPerDevice {
		if pair := dev.Assignments[pairID]; pair != nil {
			results = append(results, r.removeOne(dev, pair))
		}
	}
	return results, nil
}

func (r *Registry) removeOne(dev *Device, a *Assignment) RemoveResult {
	shouldNotify := dev.CurrentPage == a.ActuatorPageID
	if actuator := dev.actuatorByIndex(a.ActuatorID); actuator != nil && actuator.AssignmentsCount > 0 {
		actuator.AssignmentsCount--
	}
	dev.Assignments[a.ID] = nil
	return RemoveResult{ID: a.ID, ShouldNotify: shouldNotify}
}

// SetValueInput carries a caller's set_value request.
type SetValueInput struct {
	DeviceID     byte
	ActuatorID   byte
	AssignmentID int
	Value        float32
}

// SetValueResult reports the updated assignment and whether a
// SET_VALUE frame should be pushed (the device is on the assignment's
// page).
type SetValueResult struct {
	Assignment *Assignment
	ShouldPush bool
}

func (r *Registry) SetValue(in SetValueInput) (SetValueResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev := r.devices[in.DeviceID]
	if dev == nil {
		return SetValueResult{}, ccerr.NewDevice("registry.set_value", ccerr.UnknownDevice, int(in.DeviceID), "device not registered")
	}
	if in.AssignmentID < 0 || in.AssignmentID >= MaxAssignmentsPerDevice || dev.Assignments[in.AssignmentID] == nil {
		return SetValueResult{}, ccerr.NewDevice("registry.set_value", ccerr.UnknownAssignment, int(in.DeviceID), "unknown assignment")
	}

	a := dev.Assignments[in.AssignmentID]
	a.Value = in.Value

	if a.Mode&ModeOptions != 0 {
		a.ListIndex, a.FrameMin, a.FrameMax = enumWindow(int(a.Value), int(dev.EnumFrameSize), len(a.Items))
	}

	return SetValueResult{Assignment: a, ShouldPush: dev.CurrentPage == a.ActuatorPageID}, nil
}

// SwitchPage updates dev's active page and returns every assignment
// that belongs to the new page, for the caller to re-push as
// ASSIGNMENT frames with new_assignment = false.
func (r *Registry) SwitchPage(dev *Device, page byte) []*Assignment {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev.CurrentPage = page
	var onPage []*Assignment
	for _, a := range dev.Assignments {
		if a != nil && a.ActuatorPageID == page {
			onPage = append(onPage, a)
		}
	}
	return onPage
}
