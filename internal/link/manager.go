package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"
)

// Status is the connection state published by the Manager.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ManagerOptions configures the connection manager.
type ManagerOptions struct {
	Matcher        Matcher
	Service        bluetooth.UUID
	ConnectTimeout time.Duration // 0 means bounded only by the caller's ctx
	WriteTimeout   time.Duration // applied when the transport supports deadlines
}

// DefaultManagerOptions returns sensible defaults.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		Matcher:        DefaultMatcher(),
		Service:        SerialPortUUID,
		ConnectTimeout: 15 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// session is the single open transport and the device it reaches.
type session struct {
	device    PairedDevice
	transport Transport
	w         *bufio.Writer
}

// Manager owns the one session with the mixer. Connect, Send and Disconnect
// are serialized; state is readable from any goroutine.
type Manager struct {
	platform Platform
	opts     ManagerOptions

	mu   sync.Mutex
	sess *session

	status *Signal[Status]
	device atomic.Pointer[PairedDevice] // mirrors sess.device for lock-free reads
}

// NewManager creates a disconnected Manager.
func NewManager(platform Platform, opts ManagerOptions) *Manager {
	if opts.Service == (bluetooth.UUID{}) {
		opts.Service = SerialPortUUID
	}
	if opts.Matcher == (Matcher{}) {
		opts.Matcher = DefaultMatcher()
	}
	return &Manager{
		platform: platform,
		opts:     opts,
		status:   NewSignal(StatusDisconnected),
	}
}

// Connect opens a session to the matching paired device, replacing any
// previous one. It blocks on the radio and must not run on a latency
// sensitive goroutine.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked()
	m.status.Set(StatusConnecting)

	if !m.platform.AdapterEnabled() {
		return m.failLocked(ErrAdapterDisabled)
	}
	if !m.platform.PermissionGranted() {
		return m.failLocked(ErrPermissionDenied)
	}
	dev, err := Discover(m.platform, m.opts.Matcher)
	if err != nil {
		return m.failLocked(err)
	}

	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()
	}

	slog.Info("[LINK] connecting", "device", dev.Name, "address", dev.Address, "service", m.opts.Service.String())
	t, err := m.platform.Dial(ctx, dev, m.opts.Service)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return m.failLocked(err)
		}
		return m.failLocked(&TransportError{Op: "dial", Err: err})
	}

	m.sess = &session{device: dev, transport: t, w: bufio.NewWriter(t)}
	m.device.Store(&dev)
	m.status.Set(StatusConnected)
	slog.Info("[LINK] connected", "device", dev.Name, "address", dev.Address)
	return nil
}

// failLocked records a failed connect attempt (caller must hold mu).
func (m *Manager) failLocked(err error) error {
	slog.Error("[LINK] connect failed", "error", err)
	m.status.Set(StatusError)
	return err
}

// Send writes one command followed by a newline. Any write fault moves the
// session to StatusError; the caller is expected to Disconnect or Connect
// again. There is no retry.
func (m *Manager) Send(command string) error {
	if strings.ContainsAny(command, "\r\n") {
		return fmt.Errorf("link: command %q contains a line break", command)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.Load() != StatusConnected || m.sess == nil {
		return ErrNotConnected
	}

	if d, ok := m.sess.transport.(writeDeadliner); ok && m.opts.WriteTimeout > 0 {
		// Not every transport is pollable; without a deadline the write
		// simply blocks.
		_ = d.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout))
	}

	line := command + "\n"
	_, err := m.sess.w.WriteString(line)
	if err == nil {
		err = m.sess.w.Flush()
	}
	if err != nil {
		m.status.Set(StatusError)
		slog.Error("[LINK] send failed", "command", command, "error", err)
		return &TransportError{Op: "write", Err: err}
	}

	slog.Debug("[LINK] sent", "command", command, "bytes", len(line))
	return nil
}

// Disconnect closes the session if there is one. It is idempotent and always
// leaves the Manager in StatusDisconnected. Close errors are logged only.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
	m.status.Set(StatusDisconnected)
}

// Close disconnects. It never returns an error.
func (m *Manager) Close() error {
	m.Disconnect()
	return nil
}

// closeLocked releases the session (caller must hold mu).
func (m *Manager) closeLocked() {
	if m.sess == nil {
		return
	}
	if err := m.sess.transport.Close(); err != nil {
		slog.Warn("[LINK] close failed", "error", &TransportError{Op: "close", Err: err})
	}
	slog.Info("[LINK] disconnected", "device", m.sess.device.Name)
	m.sess = nil
	m.device.Store(nil)
}

// IsConnected reports whether the state is StatusConnected.
func (m *Manager) IsConnected() bool {
	return m.status.Load() == StatusConnected
}

// Status returns the current connection state.
func (m *Manager) Status() Status {
	return m.status.Load()
}

// Watch subscribes to state changes. The channel first yields the current
// state. Call the returned function to unsubscribe.
func (m *Manager) Watch() (<-chan Status, func()) {
	return m.status.Subscribe()
}

// Device returns the device of the open session. It does not wait for an
// in-flight Connect or Send.
func (m *Manager) Device() (PairedDevice, bool) {
	d := m.device.Load()
	if d == nil {
		return PairedDevice{}, false
	}
	return *d, true
}

// Matcher returns the device matcher used by Connect.
func (m *Manager) Matcher() Matcher {
	return m.opts.Matcher
}

// Platform returns the platform the Manager was built with.
func (m *Manager) Platform() Platform {
	return m.platform
}
