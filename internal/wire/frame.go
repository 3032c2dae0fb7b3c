package wire

import (
	"time"

	"github.com/control-chain/controlchain/internal/ccerr"
	"github.com/control-chain/controlchain/internal/trace"
)

const (
	SyncByte = 0xA7

	// BufferSize bounds a single frame (sync + header + data + crc),
	// matching the fixed serial buffer of the original implementation.
	BufferSize = 2048
	HeaderSize = 4
	CRCSize    = 1
	MaxDataSize = BufferSize - 1 - HeaderSize - CRCSize

	NMaxDevices = 8

	syncReadDeadline   = 500 * time.Millisecond
	headerReadDeadline = 10 * time.Millisecond
	dataReadDeadline   = 1 * time.Second
	crcReadDeadline    = headerReadDeadline
)

// Frame is a single decoded message: a destination/source device id,
// a command, and its payload.
type Frame struct {
	DeviceID byte
	Command  Command
	Data     []byte
}

// Encode produces the exact wire bytes for f: sync, 4-byte header,
// payload, crc, in that order, as one contiguous buffer suitable for
// a single write.
func Encode(f Frame) ([]byte, error) {
	if len(f.Data) > MaxDataSize {
		return nil, ccerr.New("encode", ccerr.FrameCorrupt, "data exceeds maximum frame size")
	}

	buf := make([]byte, 0, 1+HeaderSize+len(f.Data)+CRCSize)
	buf = append(buf, SyncByte)
	buf = append(buf, f.DeviceID, byte(f.Command), byte(len(f.Data)), byte(len(f.Data)>>8))
	buf = append(buf, f.Data...)
	crc := CRC8(buf[1:])
	buf = append(buf, crc)
	return buf, nil
}

// PortReader is the minimal serial-port surface the decoder needs: a
// timed Read and the ability to change that timeout between reads. A
// go.bug.st/serial Port satisfies this directly.
type PortReader interface {
	Read(p []byte) (int, error)
	SetReadTimeout(d time.Duration) error
}

type readerState int

const (
	stateAwaitSync readerState = iota
	stateAwaitHeader
	stateAwaitData
	stateAwaitCRC
)

// Decoder drives the four-state receiver state machine over a
// PortReader, producing one well-formed Frame per call to ReadFrame.
// Corrupt or misaligned bytes are dropped silently and the decoder
// resynchronises on the next sync byte; ReadFrame only returns on a
// successfully parsed frame or a fatal I/O error from the port.
type Decoder struct {
	port PortReader
}

func NewDecoder(port PortReader) *Decoder {
	return &Decoder{port: port}
}

func (d *Decoder) ReadFrame() (Frame, error) {
	for {
		if err := d.awaitSync(); err != nil {
			return Frame{}, err
		}

		header, ok, err := d.awaitHeader()
		if err != nil {
			return Frame{}, err
		}
		if !ok {
			continue
		}

		deviceID := header[0]
		command := Command(header[1])
		dataSize := int(header[2]) | int(header[3])<<8

		data, ok, err := d.awaitData(dataSize)
		if err != nil {
			return Frame{}, err
		}
		if !ok {
			continue
		}

		headerAndData := make([]byte, 0, HeaderSize+dataSize)
		headerAndData = append(headerAndData, header...)
		headerAndData = append(headerAndData, data...)

		ok, err = d.awaitCRC(headerAndData)
		if err != nil {
			return Frame{}, err
		}
		if !ok {
			continue
		}

		f := Frame{DeviceID: deviceID, Command: command, Data: data}
		trace.Framef("rx device=%d command=%s size=%d", deviceID, command, len(data))
		return f, nil
	}
}

func (d *Decoder) awaitSync() error {
	buf := make([]byte, 1)
	for {
		n, err := readTimed(d.port, buf, syncReadDeadline)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		if buf[0] == SyncByte {
			return nil
		}
	}
}

func (d *Decoder) awaitHeader() ([]byte, bool, error) {
	buf := make([]byte, HeaderSize)
	n, err := readFull(d.port, buf, headerReadDeadline)
	if err != nil {
		if ccerr.Is(err, ccerr.Timeout) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if n < HeaderSize {
		return nil, false, nil
	}

	deviceID := buf[0]
	command := buf[1]
	dataSize := int(buf[2]) | int(buf[3])<<8

	if deviceID > NMaxDevices {
		return nil, false, nil
	}
	if command >= NumCommands {
		return nil, false, nil
	}
	if dataSize > MaxDataSize {
		return nil, false, nil
	}
	return buf, true, nil
}

func (d *Decoder) awaitData(size int) ([]byte, bool, error) {
	if size == 0 {
		return nil, true, nil
	}
	buf := make([]byte, size)
	n, err := readFull(d.port, buf, dataReadDeadline)
	if err != nil {
		if ccerr.Is(err, ccerr.Timeout) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if n < size {
		return nil, false, nil
	}
	return buf, true, nil
}

func (d *Decoder) awaitCRC(headerAndData []byte) (bool, error) {
	buf := make([]byte, 1)
	n, err := readFull(d.port, buf, crcReadDeadline)
	if err != nil {
		if ccerr.Is(err, ccerr.Timeout) {
			return false, nil
		}
		return false, err
	}
	if n < 1 {
		return false, nil
	}
	want := CRC8(headerAndData)
	return buf[0] == want, nil
}

// readTimed performs a single timed Read, returning n=0,nil on a
// timeout with no data rather than an error.
func readTimed(r PortReader, buf []byte, deadline time.Duration) (int, error) {
	if err := r.SetReadTimeout(deadline); err != nil {
		return 0, ccerr.Wrap("read", ccerr.SerialUnavailable, err)
	}
	n, err := r.Read(buf)
	if err != nil {
		return n, ccerr.Wrap("read", ccerr.SerialUnavailable, err)
	}
	return n, nil
}

// readFull reads exactly len(buf) bytes, retrying short reads until
// either the buffer is full or deadline has elapsed overall.
func readFull(r PortReader, buf []byte, deadline time.Duration) (int, error) {
	if err := r.SetReadTimeout(deadline); err != nil {
		return 0, ccerr.Wrap("read", ccerr.SerialUnavailable, err)
	}
	start := time.Now()
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		if err != nil {
			return total, ccerr.Wrap("read", ccerr.SerialUnavailable, err)
		}
		total += n
		if n == 0 {
			if time.Since(start) >= deadline {
				return total, ccerr.New("read", ccerr.Timeout, "deadline exceeded")
			}
		}
	}
	return total, nil
}
