// Package serialport implements the hot-plug-tolerant serial port
// lifecycle: a stat-and-retry open sequence that tolerates missing
// device files, symlink chasing with permission-race retries, an
// Arduino bootloader settle delay, and EIO-triggered disable/reopen
// during normal operation.
package serialport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/control-chain/controlchain/internal/ccerr"
	"github.com/control-chain/controlchain/internal/trace"
)

const (
	statRetryInterval    = 1 * time.Second
	symlinkRetries       = 10
	symlinkRetryInterval = 100 * time.Millisecond
	arduinoSettleDelay   = 3 * time.Second
)

// Manager owns the lifecycle of a single serial port: opening it,
// tolerating hot-unplug, and serialising writes behind a send lock so
// at most one frame is ever in flight on the wire.
type Manager struct {
	path string
	baud int

	mu      sync.Mutex
	port    serial.Port
	enabled bool

	writeMu sync.Mutex
}

func New(path string, baud int) *Manager {
	return &Manager{path: path, baud: baud}
}

// EnsureOpen blocks until the port is open and configured, retrying
// indefinitely past a missing device file and udev permission races.
// It is a no-op if the port is already open and enabled.
func (m *Manager) EnsureOpen(ctx context.Context) error {
	m.mu.Lock()
	if m.enabled {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	resolved, err := m.waitAndResolve(ctx)
	if err != nil {
		return err
	}

	mode := &serial.Mode{
		BaudRate: m.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	var port serial.Port
	for {
		port, err = serial.Open(resolved, mode)
		if err == nil {
			break
		}
		trace.Eventf("serialport: open %s failed: %v, retrying", resolved, err)
		if waitErr := sleepCtx(ctx, statRetryInterval); waitErr != nil {
			return waitErr
		}
	}

	// XON/XOFF disabled: go.bug.st/serial does not enable software
	// flow control unless RS485 mode is configured, so there is
	// nothing further to disable here.

	if m.looksLikeArduino(resolved) {
		trace.Eventf("serialport: arduino-like device detected, settling %s", arduinoSettleDelay)
		if waitErr := sleepCtx(ctx, arduinoSettleDelay); waitErr != nil {
			port.Close()
			return waitErr
		}
	}

	m.mu.Lock()
	m.port = port
	m.enabled = true
	m.mu.Unlock()

	trace.Eventf("serialport: opened %s", resolved)
	return nil
}

// waitAndResolve stats the configured path, retrying indefinitely
// until it exists, then resolves it if it is a symlink, retrying
// against EACCES up to symlinkRetries times.
func (m *Manager) waitAndResolve(ctx context.Context) (string, error) {
	for {
		info, err := os.Lstat(m.path)
		if err != nil {
			if os.IsNotExist(err) {
				if waitErr := sleepCtx(ctx, statRetryInterval); waitErr != nil {
					return "", waitErr
				}
				continue
			}
			return "", ccerr.Wrap("serialport.open", ccerr.SerialUnavailable, err)
		}

		if info.Mode()&os.ModeSymlink == 0 {
			return m.path, nil
		}

		resolved, err := m.resolveSymlink(ctx)
		if err != nil {
			return "", err
		}
		return resolved, nil
	}
}

func (m *Manager) resolveSymlink(ctx context.Context) (string, error) {
	var lastErr error
	for i := 0; i < symlinkRetries; i++ {
		resolved, err := filepath.EvalSymlinks(m.path)
		if err == nil {
			return resolved, nil
		}
		lastErr = err
		if !os.IsPermission(err) {
			break
		}
		if waitErr := sleepCtx(ctx, symlinkRetryInterval); waitErr != nil {
			return "", waitErr
		}
	}
	return "", ccerr.Wrap("serialport.open", ccerr.SerialUnavailable, lastErr)
}

// looksLikeArduino is a best-effort check for the Arduino bootloader
// settle delay; it inspects the USB device's manufacturer string when
// the platform exposes one via sysfs, falling back to the device name.
func (m *Manager) looksLikeArduino(resolved string) bool {
	base := filepath.Base(resolved)
	// Concatenated rather than filepath.Join'd: Join would clean
	// "device/.." away lexically instead of letting the kernel resolve
	// ".." after following the device symlink.
	sysPath := "/sys/class/tty/" + base + "/device/../manufacturer"
	if data, err := os.ReadFile(sysPath); err == nil {
		return strings.Contains(string(data), "Arduino")
	}
	return strings.Contains(strings.ToLower(resolved), "arduino")
}

// Write emits one contiguous frame buffer under the send lock. On EIO
// it disables the port so the next read cycle reopens it.
func (m *Manager) Write(buf []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	port := m.port
	enabled := m.enabled
	m.mu.Unlock()

	if !enabled || port == nil {
		return ccerr.New("serialport.write", ccerr.SerialUnavailable, "port not open")
	}

	_, err := port.Write(buf)
	if err != nil {
		if isEIO(err) {
			m.disable()
		}
		return ccerr.Wrap("serialport.write", ccerr.SerialUnavailable, err)
	}
	return nil
}

// Port returns the currently open port for the decoder to read from,
// or nil if the port is disabled.
func (m *Manager) Port() (serial.Port, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port, m.enabled
}

// Enabled reports whether the port is currently open.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Disable marks the port as closed and requiring reopen, e.g. after a
// read error observed by the receiver loop.
func (m *Manager) Disable() {
	m.disable()
}

func (m *Manager) disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port != nil {
		m.port.Close()
		m.port = nil
	}
	m.enabled = false
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port == nil {
		return nil
	}
	err := m.port.Close()
	m.port = nil
	m.enabled = false
	return err
}

func isEIO(err error) bool {
	return err == syscall.EIO || strings.Contains(err.Error(), "input/output error")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
