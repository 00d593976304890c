package control

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/mixerctl/internal/link"
)

// mockTransport records writes.
type mockTransport struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	writeErr error
}

func (t *mockTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	return t.buf.Write(p)
}

func (t *mockTransport) Close() error { return nil }

func (t *mockTransport) written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

func (t *mockTransport) failWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// mockPlatform simulates the host Bluetooth stack.
type mockPlatform struct {
	mu        sync.Mutex
	enabled   bool
	permitted bool
	devices   []link.PairedDevice
	dialErr   error
	blockDial bool          // Dial waits for ctx
	dialing   chan struct{} // closed when a blocking Dial starts
	transport *mockTransport
}

func newMockPlatform(devices ...link.PairedDevice) *mockPlatform {
	return &mockPlatform{enabled: true, permitted: true, devices: devices}
}

func (p *mockPlatform) AdapterEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *mockPlatform) PermissionGranted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permitted
}

func (p *mockPlatform) PairedDevices() ([]link.PairedDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]link.PairedDevice(nil), p.devices...), nil
}

func (p *mockPlatform) Dial(ctx context.Context, _ link.PairedDevice, _ bluetooth.UUID) (link.Transport, error) {
	p.mu.Lock()
	block, dialing := p.blockDial, p.dialing
	p.mu.Unlock()
	if block {
		close(dialing)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dialErr != nil {
		return nil, p.dialErr
	}
	p.transport = &mockTransport{}
	return p.transport, nil
}

func (p *mockPlatform) latestTransport() *mockTransport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport
}

var errRadio = errors.New("radio fault")

var mixer = link.PairedDevice{Name: "ESP32_Mixer", Address: "24:0A:C4:00:00:01"}

func newTestSession(p *mockPlatform, opts Options) *Session {
	return NewSession(link.NewManager(p, link.DefaultManagerOptions()), opts)
}
