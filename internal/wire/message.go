package wire

import (
	"encoding/binary"
	"math"

	"github.com/control-chain/controlchain/internal/ccerr"
)

// writeString appends a 1-byte length prefix followed by s's bytes,
// matching the original library's string_t wire representation.
func writeString(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

func readString(data []byte, off int) (string, int, error) {
	if off >= len(data) {
		return "", off, ccerr.New("decode", ccerr.FrameCorrupt, "truncated string length")
	}
	n := int(data[off])
	off++
	if off+n > len(data) {
		return "", off, ccerr.New("decode", ccerr.FrameCorrupt, "truncated string body")
	}
	return string(data[off : off+n]), off + n, nil
}

func writeFloat32(buf []byte, v float32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	return append(buf, b[:]...)
}

func readFloat32(data []byte, off int) (float32, int, error) {
	if off+4 > len(data) {
		return 0, off, ccerr.New("decode", ccerr.FrameCorrupt, "truncated float")
	}
	bits := binary.LittleEndian.Uint32(data[off : off+4])
	return math.Float32frombits(bits), off + 4, nil
}

// HandshakeRequest is the device->host payload of a HANDSHAKE frame.
type HandshakeRequest struct {
	URI         string
	RandomID    uint16
	ProtoMajor  byte
	ProtoMinor  byte
	FWMajor     byte
	FWMinor     byte
	FWMicro     byte
}

func DecodeHandshakeRequest(data []byte) (HandshakeRequest, error) {
	var req HandshakeRequest
	uri, off, err := readString(data, 0)
	if err != nil {
		return req, err
	}
	if off+7 > len(data) {
		return req, ccerr.New("decode", ccerr.FrameCorrupt, "truncated handshake request")
	}
	req.URI = uri
	req.RandomID = binary.LittleEndian.Uint16(data[off : off+2])
	req.ProtoMajor = data[off+2]
	req.ProtoMinor = data[off+3]
	req.FWMajor = data[off+4]
	req.FWMinor = data[off+5]
	req.FWMicro = data[off+6]
	return req, nil
}

// HandshakeReply is the host->device payload of a HANDSHAKE frame: the
// v0.7 wire layout is random_id, status, device_id with no trailing
// channel byte (channel is host-side bookkeeping only).
type HandshakeReply struct {
	RandomID uint16
	Status   HandshakeStatus
	DeviceID byte
}

func EncodeHandshakeReply(r HandshakeReply) []byte {
	buf := make([]byte, 0, 4)
	var id [2]byte
	binary.LittleEndian.PutUint16(id[:], r.RandomID)
	buf = append(buf, id[:]...)
	buf = append(buf, byte(r.Status), r.DeviceID)
	return buf
}

// Actuator describes one actuator slot in a device descriptor.
type Actuator struct {
	Name           string
	Modes          uint32
	MaxAssignments byte
}

// ActuatorGroup describes a named pair of actuator indices.
type ActuatorGroup struct {
	Name  string
	First byte
	Second byte
}

// DeviceDescriptor is the device->host payload of a DEV_DESCRIPTOR
// reply.
type DeviceDescriptor struct {
	URI           string
	Label         string
	Actuators     []Actuator
	Groups        []ActuatorGroup
	EnumFrameSize byte
	PageCount     byte
	ChainID       uint16
}

func DecodeDeviceDescriptor(data []byte) (DeviceDescriptor, error) {
	var desc DeviceDescriptor
	off := 0
	var err error
	desc.URI, off, err = readString(data, off)
	if err != nil {
		return desc, err
	}
	desc.Label, off, err = readString(data, off)
	if err != nil {
		return desc, err
	}
	if off >= len(data) {
		return desc, ccerr.New("decode", ccerr.FrameCorrupt, "truncated descriptor")
	}
	actCount := int(data[off])
	off++
	desc.Actuators = make([]Actuator, 0, actCount)
	for i := 0; i < actCount; i++ {
		var a Actuator
		a.Name, off, err = readString(data, off)
		if err != nil {
			return desc, err
		}
		if off+5 > len(data) {
			return desc, ccerr.New("decode", ccerr.FrameCorrupt, "truncated actuator")
		}
		a.Modes = binary.LittleEndian.Uint32(data[off : off+4])
		a.MaxAssignments = data[off+4]
		off += 5
		desc.Actuators = append(desc.Actuators, a)
	}

	if off >= len(data) {
		return desc, ccerr.New("decode", ccerr.FrameCorrupt, "truncated descriptor groups")
	}
	groupCount := int(data[off])
	off++
	desc.Groups = make([]ActuatorGroup, 0, groupCount)
	for i := 0; i < groupCount; i++ {
		var g ActuatorGroup
		g.Name, off, err = readString(data, off)
		if err != nil {
			return desc, err
		}
		if off+2 > len(data) {
			return desc, ccerr.New("decode", ccerr.FrameCorrupt, "truncated group")
		}
		g.First, g.Second = data[off], data[off+1]
		off += 2
		desc.Groups = append(desc.Groups, g)
	}

	if off+4 > len(data) {
		return desc, ccerr.New("decode", ccerr.FrameCorrupt, "truncated descriptor tail")
	}
	desc.EnumFrameSize = data[off]
	desc.PageCount = data[off+1]
	desc.ChainID = binary.LittleEndian.Uint16(data[off+2 : off+4])
	return desc, nil
}

func EncodeDescriptorRequest(kind DescriptorRequestKind) []byte {
	return []byte{byte(kind)}
}

// EnumItem is one visible entry in an option-mode assignment's
// enumeration window.
type EnumItem struct {
	Label string
	Value float32
}

// AssignmentPayload is the host->device payload of an ASSIGNMENT
// frame.
type AssignmentPayload struct {
	ID         byte
	ActuatorID byte
	Label      string
	Value      float32
	Min        float32
	Max        float32
	Default    float32
	Mode       uint32
	Steps      byte
	Unit       string
	ListIndex  byte
	ListCount  byte
	Items      []EnumItem
}

func EncodeAssignment(a AssignmentPayload) []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, a.ID, a.ActuatorID)
	buf = writeString(buf, a.Label)
	buf = writeFloat32(buf, a.Value)
	buf = writeFloat32(buf, a.Min)
	buf = writeFloat32(buf, a.Max)
	buf = writeFloat32(buf, a.Default)
	var mode [4]byte
	binary.LittleEndian.PutUint32(mode[:], a.Mode)
	buf = append(buf, mode[:]...)
	buf = append(buf, a.Steps)
	buf = writeString(buf, a.Unit)
	buf = append(buf, a.ListIndex, byte(len(a.Items)))
	for _, item := range a.Items {
		buf = writeString(buf, item.Label)
		buf = writeFloat32(buf, item.Value)
	}
	return buf
}

// UnassignmentPayload is the host->device payload of an UNASSIGNMENT
// frame.
type UnassignmentPayload struct {
	ID byte
}

func EncodeUnassignment(p UnassignmentPayload) []byte {
	return []byte{p.ID}
}

// SetValuePayload is the host->device payload of a SET_VALUE frame.
type SetValuePayload struct {
	AssignmentID byte
	ActuatorID   byte
	Value        float32
}

func EncodeSetValue(p SetValuePayload) []byte {
	buf := make([]byte, 0, 6)
	buf = append(buf, p.AssignmentID, p.ActuatorID)
	return writeFloat32(buf, p.Value)
}

// UpdateEnumerationPayload is the host->device payload of an
// UPDATE_ENUMERATION frame.
type UpdateEnumerationPayload struct {
	AssignmentID byte
	ActuatorID   byte
	ListIndex    byte
	Items        []EnumItem
}

func EncodeUpdateEnumeration(p UpdateEnumerationPayload) []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, p.AssignmentID, p.ActuatorID, p.ListIndex, byte(len(p.Items)))
	for _, item := range p.Items {
		buf = writeString(buf, item.Label)
		buf = writeFloat32(buf, item.Value)
	}
	return buf
}

// UpdateEntry is one (assignment, value) pair reported in a
// DATA_UPDATE frame.
type UpdateEntry struct {
	AssignmentID byte
	Value        float32
}

func DecodeDataUpdate(data []byte) ([]UpdateEntry, error) {
	if len(data) == 0 {
		return nil, ccerr.New("decode", ccerr.FrameCorrupt, "empty data update")
	}
	count := int(data[0])
	entries := make([]UpdateEntry, 0, count)
	off := 1
	for i := 0; i < count; i++ {
		if off+5 > len(data) {
			return nil, ccerr.New("decode", ccerr.FrameCorrupt, "truncated data update")
		}
		id := data[off]
		val, newOff, err := readFloat32(data, off+1)
		if err != nil {
			return nil, err
		}
		entries = append(entries, UpdateEntry{AssignmentID: id, Value: val})
		off = newOff
	}
	return entries, nil
}

func EncodeDevControl(kind DevControlKind) []byte {
	return []byte{byte(kind)}
}

func EncodeChainSync(kind SyncKind) []byte {
	return []byte{byte(kind)}
}

func DecodeRequestControlPage(data []byte) (byte, error) {
	if len(data) < 1 {
		return 0, ccerr.New("decode", ccerr.FrameCorrupt, "empty control page request")
	}
	return data[0], nil
}
