// Package registry implements control chain's device, actuator,
// actuator-group, and assignment object model: a dense slot map keyed
// by small integer ids, with explicit nil-as-vacant semantics in
// place of the original sentinel-id convention, since ids are stable
// for a slot's lifetime and appear on the wire.
package registry

import (
	"sync"

	"github.com/control-chain/controlchain/internal/ccerr"
	"github.com/control-chain/controlchain/internal/wire"
)

const (
	NMaxDevices             = wire.NMaxDevices
	MaxAssignmentsPerDevice = 256
	MaxActuatorPages        = 16
	DeviceTimeoutCycles     = 100
)

type DeviceStatus int

const (
	Disconnected DeviceStatus = iota
	Connected
)

func (s DeviceStatus) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// ListFilter selects a subset of device ids for DeviceList.
type ListFilter int

const (
	FilterAll ListFilter = iota
	FilterRegistered
	FilterUnregistered
)

// Actuator is one physical control on a device. Connect creates one
// Actuator per descriptor entry, indexed from 0; the list is not
// replicated per page, so Add accepts only actuator ids below the
// descriptor's actuator count, all of which fall on page 0.
type Actuator struct {
	Index            byte
	Name             string
	Modes            uint32
	MaxAssignments   byte
	AssignmentsCount byte
}

// ActuatorGroup names a pair of actuator indices addressable as one
// coupled control.
type ActuatorGroup struct {
	Name   string
	First  byte
	Second byte
}

// Device is one connected (or awaiting-descriptor) chain member.
type Device struct {
	ID byte

	ProtoMajor, ProtoMinor          byte
	FWMajor, FWMinor, FWMicro       byte
	URI, Label                     string
	Channel                         int
	Status                          DeviceStatus
	RandomID                        uint16

	Actuators []*Actuator
	Groups    []*ActuatorGroup
	Assignments [MaxAssignmentsPerDevice]*Assignment

	EnumFrameSize byte
	CurrentPage   byte
	PageCount     byte
	ChainID       uint16

	Timeout int
}

// actuatorByIndex finds an actuator by its base index (not its
// page-virtualised id).
func (d *Device) actuatorByIndex(index byte) *Actuator {
	for _, a := range d.Actuators {
		if a.Index == index {
			return a
		}
	}
	return nil
}

// slotsPerPage is the divisor used to compute actuator_page_id: the
// number of addressable controls on one page (actuators plus groups).
func (d *Device) slotsPerPage() int {
	n := len(d.Actuators) + len(d.Groups)
	if n == 0 {
		return 1
	}
	return n
}

// Registry owns all connected devices. The original design relied on
// the scheduler's serialisation to avoid races across the receiver,
// scheduler, and caller paths; this port makes that lock explicit
// instead, protecting every field reachable from here with one coarse
// mutex.
type Registry struct {
	mu      sync.Mutex
	devices [NMaxDevices + 1]*Device // slot 0 is never used
}

func New() *Registry {
	return &Registry{}
}

// Admit processes a HANDSHAKE request: checks protocol compatibility,
// and on success allocates the lowest free device id and returns a new
// Disconnected device awaiting its descriptor.
func (r *Registry) Admit(req wire.HandshakeRequest, hostMajor, hostMinor byte) (*Device, wire.HandshakeStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := wire.HandshakeOk
	if req.ProtoMajor < hostMajor {
		status = wire.HandshakeUpdateRequired
	} else if req.ProtoMinor < hostMinor {
		status = wire.HandshakeUpdateAvailable
	}
	if status == wire.HandshakeUpdateRequired {
		return nil, status, nil
	}

	slot := byte(0)
	for i := byte(1); i <= NMaxDevices; i++ {
		if r.devices[i] == nil {
			slot = i
			break
		}
	}
	if slot == 0 {
		return nil, status, ccerr.New("registry.admit", ccerr.CapacityExhausted, "no free device slot")
	}

	channel := 0
	for i := byte(1); i <= NMaxDevices; i++ {
		if r.devices[i] != nil && r.devices[i].URI == req.URI {
			channel++
		}
	}

	dev := &Device{
		ID:         slot,
		ProtoMajor: req.ProtoMajor,
		ProtoMinor: req.ProtoMinor,
		FWMajor:    req.FWMajor,
		FWMinor:    req.FWMinor,
		FWMicro:    req.FWMicro,
		URI:        req.URI,
		RandomID:   req.RandomID,
		Channel:    channel,
		Status:     Disconnected,
	}
	r.devices[slot] = dev
	return dev, status, nil
}

// Connect fills in a device from its descriptor reply and marks it
// Connected.
func (r *Registry) Connect(id byte, desc wire.DeviceDescriptor) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev := r.devices[id]
	if dev == nil {
		return nil, ccerr.NewDevice("registry.connect", ccerr.UnknownDevice, int(id), "device not registered")
	}

	dev.Label = desc.Label
	dev.EnumFrameSize = desc.EnumFrameSize
	dev.PageCount = desc.PageCount
	dev.ChainID = desc.ChainID
	dev.Actuators = make([]*Actuator, 0, len(desc.Actuators))
	for i, a := range desc.Actuators {
		dev.Actuators = append(dev.Actuators, &Actuator{
			Index:          byte(i),
			Name:           a.Name,
			Modes:          a.Modes,
			MaxAssignments: a.MaxAssignments,
		})
	}
	dev.Groups = make([]*ActuatorGroup, 0, len(desc.Groups))
	for _, g := range desc.Groups {
		dev.Groups = append(dev.Groups, &ActuatorGroup{Name: g.Name, First: g.First, Second: g.Second})
	}
	dev.Status = Connected
	return dev, nil
}

func (r *Registry) Get(id byte) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev := r.devices[id]
	return dev, dev != nil
}

// RemoveDevice evicts a device unconditionally and frees its slot.
func (r *Registry) RemoveDevice(id byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id >= 1 && id <= NMaxDevices {
		r.devices[id] = nil
	}
}

// ResetTimeout zeroes the idle counter for id, called whenever any
// frame is received from that device.
func (r *Registry) ResetTimeout(id byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dev := r.devices[id]; dev != nil {
		dev.Timeout = 0
	}
}

// Tick ages every device by one sync cycle and returns the devices
// evicted this cycle for timeout (>= DeviceTimeoutCycles with no
// traffic), marked Disconnected, for the caller to fire exactly one
// status callback per evicted device.
func (r *Registry) Tick() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []*Device
	for i := byte(1); i <= NMaxDevices; i++ {
		dev := r.devices[i]
		if dev == nil {
			continue
		}
		dev.Timeout++
		if dev.Timeout >= DeviceTimeoutCycles {
			dev.Status = Disconnected
			evicted = append(evicted, dev)
			r.devices[i] = nil
		}
	}
	return evicted
}

// WithoutDescriptor returns the ids of devices still awaiting their
// descriptor round-trip.
func (r *Registry) WithoutDescriptor() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []byte
	for i := byte(1); i <= NMaxDevices; i++ {
		if dev := r.devices[i]; dev != nil && dev.Status == Disconnected {
			ids = append(ids, i)
		}
	}
	return ids
}

func (r *Registry) List(filter ListFilter) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []byte
	for i := byte(1); i <= NMaxDevices; i++ {
		dev := r.devices[i]
		switch filter {
		case FilterAll:
			if dev != nil {
				ids = append(ids, i)
			}
		case FilterRegistered:
			if dev != nil && dev.Status == Connected {
				ids = append(ids, i)
			}
		case FilterUnregistered:
			if dev != nil && dev.Status == Disconnected {
				ids = append(ids, i)
			}
		}
	}
	return ids
}

func (r *Registry) CountWithURI(uri string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := byte(1); i <= NMaxDevices; i++ {
		if dev := r.devices[i]; dev != nil && dev.URI == uri {
			n++
		}
	}
	return n
}

// Lock/Unlock expose the coarse registry lock to callers that need to
// read and mutate a *Device's fields consistently with the receiver
// and scheduler tasks. The registry's own methods take the lock
// directly rather than through these.
func (r *Registry) Lock()   { r.mu.Lock() }
func (r *Registry) Unlock() { r.mu.Unlock() }
