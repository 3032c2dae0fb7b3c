// Package controlchain is a master-side runtime for the control chain
// serial protocol: it drives a half-duplex serial line, frames
// messages, performs a time-division handshake with daisy-chained
// controller devices, retrieves their descriptors, pushes per-actuator
// assignments, receives value updates, and surfaces callbacks.
package controlchain

import "github.com/control-chain/controlchain/internal/registry"

// Public data-model aliases: the registry package owns the
// implementation, this package is the stable public surface.
type (
	Device        = registry.Device
	Actuator      = registry.Actuator
	ActuatorGroup = registry.ActuatorGroup
	Assignment    = registry.Assignment
	AssignmentInput = registry.AssignmentInput
	AssignmentKey = registry.AssignmentKey
	SetValueInput = registry.SetValueInput
	UpdateList    = registry.UpdateList
	UpdateData    = registry.UpdateData
	DeviceStatus  = registry.DeviceStatus
	ListFilter    = registry.ListFilter
)

const (
	Disconnected = registry.Disconnected
	Connected    = registry.Connected
)

const (
	FilterAll          = registry.FilterAll
	FilterRegistered   = registry.FilterRegistered
	FilterUnregistered = registry.FilterUnregistered
)

// Assignment mode bitmask, re-exported for callers building
// AssignmentInput values.
const (
	ModeToggle      = registry.ModeToggle
	ModeTrigger     = registry.ModeTrigger
	ModeOptions     = registry.ModeOptions
	ModeTapTempo    = registry.ModeTapTempo
	ModeReal        = registry.ModeReal
	ModeInteger     = registry.ModeInteger
	ModeLogarithmic = registry.ModeLogarithmic
	ModeColoured    = registry.ModeColoured
	ModeMomentary   = registry.ModeMomentary
	ModeReverse     = registry.ModeReverse
	ModeGroup       = registry.ModeGroup
)

const (
	NMaxDevices             = registry.NMaxDevices
	MaxAssignmentsPerDevice = registry.MaxAssignmentsPerDevice
	MaxActuatorPages        = registry.MaxActuatorPages
)

// ProtocolMajor/ProtocolMinor are the host's advertised protocol
// version, used during handshake admission (§4.4).
const (
	ProtocolMajor byte = 0
	ProtocolMinor byte = 7
)
