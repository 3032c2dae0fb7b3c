package wire

import (
	"io"
	"testing"
	"time"
)

// fakePort feeds ReadFrame from an in-memory buffer; it satisfies
// PortReader without touching a real serial device.
type fakePort struct {
	buf []byte
}

func (p *fakePort) SetReadTimeout(d time.Duration) error { return nil }

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := Frame{DeviceID: 3, Command: Assignment, Data: []byte{1, 2, 3, 4, 5}}
	buf, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoder := NewDecoder(&fakePort{buf: buf})
	got, err := decoder.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.DeviceID != want.DeviceID || got.Command != want.Command || string(got.Data) != string(want.Data) {
		t.Fatalf("ReadFrame round trip = %+v, want %+v", got, want)
	}
}

func TestDecoderResyncsAfterGarbage(t *testing.T) {
	want := Frame{DeviceID: 1, Command: ChainSync, Data: nil}
	good, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// A stray sync byte followed by an invalid 4-byte header (device id
	// 0x55 exceeds NMaxDevices): the decoder discards those header bytes
	// and resynchronises on the good frame's sync byte.
	garbage := []byte{0x00, 0xFF, 0xA7, 0x55, 0x00, 0x00, 0x00}
	buf := append(append([]byte{}, garbage...), good...)

	decoder := NewDecoder(&fakePort{buf: buf})
	got, err := decoder.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.DeviceID != want.DeviceID || got.Command != want.Command {
		t.Fatalf("ReadFrame after garbage = %+v, want %+v", got, want)
	}
}

func TestDecoderRejectsBadCRC(t *testing.T) {
	good, err := Encode(Frame{DeviceID: 1, Command: ChainSync})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	corrupted := append([]byte{}, good...)
	corrupted[len(corrupted)-1] ^= 0xFF // flip the CRC byte

	second, err := Encode(Frame{DeviceID: 2, Command: Handshake, Data: []byte{9}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoder := NewDecoder(&fakePort{buf: append(corrupted, second...)})
	got, err := decoder.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.DeviceID != 2 || got.Command != Handshake {
		t.Fatalf("expected decoder to drop the corrupted frame and return the next one, got %+v", got)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(Frame{DeviceID: 1, Command: Assignment, Data: make([]byte, MaxDataSize+1)})
	if err == nil {
		t.Fatal("expected Encode to reject a payload larger than MaxDataSize")
	}
}
