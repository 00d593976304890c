package link

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Display texts published by the Poller.
const (
	TextNotEnabled         = "Bluetooth not enabled"
	TextPermissionRequired = "Bluetooth permission required"
	TextWaiting            = "Bluetooth enabled - waiting for connection"
	textConnectedPrefix    = "Connected to "
)

// Display is the user-facing connection summary.
type Display struct {
	Enabled    bool   `json:"enabled"`
	Connected  bool   `json:"connected"`
	DeviceName string `json:"device_name,omitempty"`
	Text       string `json:"text"`
}

// Describe applies the status decision table.
func Describe(enabled, permitted, connected bool, deviceName string) Display {
	switch {
	case !enabled:
		return Display{Text: TextNotEnabled}
	case !permitted:
		return Display{Enabled: true, Text: TextPermissionRequired}
	case connected:
		return Display{Enabled: true, Connected: true, DeviceName: deviceName, Text: textConnectedPrefix + deviceName}
	default:
		return Display{Enabled: true, Text: TextWaiting}
	}
}

// Poller periodically derives a Display from the platform and the Manager.
// It republishes only when the (Enabled, Connected) pair changes.
type Poller struct {
	platform    Platform
	manager     *Manager
	interval    time.Duration
	defaultName string

	mu        sync.Mutex
	published bool
	last      [2]bool // adapter enabled, manager connected at the last publish

	display *Signal[Display]
	trigger chan struct{}
}

// NewPoller creates a Poller. defaultName is shown when the connected
// device has no name.
func NewPoller(m *Manager, interval time.Duration, defaultName string) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		platform:    m.Platform(),
		manager:     m,
		interval:    interval,
		defaultName: defaultName,
		display:     NewSignal(Display{}),
		trigger:     make(chan struct{}, 1),
	}
}

// Run ticks until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Debug("[POLL] started", "interval", p.interval)
	defer slog.Debug("[POLL] stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick()
		case <-p.trigger:
			p.Tick()
		}
	}
}

// Trigger requests an immediate tick. Requests made while one is pending are
// coalesced.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Tick runs one status check and reports whether a new Display was published.
func (p *Poller) Tick() bool {
	enabled := p.platform.AdapterEnabled()
	permitted := p.platform.PermissionGranted()
	connected := p.manager.IsConnected()

	p.mu.Lock()
	changed := !p.published || p.last != [2]bool{enabled, connected}
	p.mu.Unlock()
	if !changed {
		return false
	}

	name := p.defaultName
	if dev, ok := p.manager.Device(); ok && dev.Name != "" {
		name = dev.Name
	}

	slog.Debug("[POLL] bluetooth state changed", "enabled", enabled, "connected", connected)
	p.publish([2]bool{enabled, connected}, Describe(enabled, permitted, connected, name))
	return true
}

// Publish announces d and records its (Enabled, Connected) pair for
// de-duplication.
func (p *Poller) Publish(d Display) {
	p.publish([2]bool{d.Enabled, d.Connected}, d)
}

// publish records the observed pair, which can differ from d's when the
// adapter is off or permission is missing while the manager is connected.
func (p *Poller) publish(pair [2]bool, d Display) {
	p.mu.Lock()
	p.published = true
	p.last = pair
	p.mu.Unlock()
	p.display.Set(d)
}

// DefaultName returns the name shown for a connected device without one.
func (p *Poller) DefaultName() string {
	return p.defaultName
}

// Display returns the last published Display.
func (p *Poller) Display() Display {
	return p.display.Load()
}

// Watch subscribes to Display changes. The channel first yields the current
// value.
func (p *Poller) Watch() (<-chan Display, func()) {
	return p.display.Subscribe()
}
