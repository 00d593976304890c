// Package control owns the running mixer session and exposes it over HTTP.
package control

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/mixerctl/internal/link"
	"github.com/chaz8081/mixerctl/internal/link/protocol"
	"github.com/chaz8081/mixerctl/internal/monitor"
)

// Display texts published around an explicit connect.
const (
	TextConnecting    = "Connecting to ESP32..."
	TextConnectFailed = "Could not connect to ESP32"
)

// WatchFunc calls changed whenever the platform's Bluetooth state changes,
// until ctx is done.
type WatchFunc func(ctx context.Context, changed func()) error

// Options configures a Session.
type Options struct {
	PollInterval  time.Duration
	DefaultName   string           // shown for a connected device without a name
	ProfileLabels protocol.Labels  // zero means protocol.ShortLabels
	Telemetry     *monitor.History // optional
	Watch         WatchFunc        // optional
}

// Session ties the connection manager, the status poller and the mode state
// together for the lifetime of the process.
type Session struct {
	manager   *link.Manager
	poller    *link.Poller
	modes     *Modes
	telemetry *monitor.History
	watch     WatchFunc

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewSession creates a Session around m. Call Start to begin polling.
func NewSession(m *link.Manager, opts Options) *Session {
	if opts.DefaultName == "" {
		opts.DefaultName = link.DefaultMatcher().DefaultName
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		manager:   m,
		poller:    link.NewPoller(m, opts.PollInterval, opts.DefaultName),
		modes:     NewModes(m, opts.ProfileLabels),
		telemetry: opts.Telemetry,
		watch:     opts.Watch,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs the poller and the platform watcher in the background.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.poller.Run(s.ctx)
		}()

		if s.watch != nil {
			if err := s.watch(s.ctx, s.poller.Trigger); err != nil {
				slog.Warn("[API] bluetooth state watcher unavailable, polling only", "error", err)
			}
		}
		s.poller.Trigger()
	})
}

// Connect opens the session with the mixer and publishes the outcome. It
// returns early with the matching error when the adapter is off or
// permission is missing. Close cancels an in-flight Connect.
func (s *Session) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	if err := s.ctx.Err(); err != nil {
		return err
	}

	platform := s.manager.Platform()
	enabled := platform.AdapterEnabled()
	permitted := platform.PermissionGranted()
	if !enabled || !permitted {
		// Only the display changes here; the manager keeps its session and status.
		s.poller.Publish(link.Describe(enabled, permitted, false, ""))
		if !enabled {
			return link.ErrAdapterDisabled
		}
		return link.ErrPermissionDenied
	}

	s.poller.Publish(link.Display{Enabled: true, Text: TextConnecting})
	if err := s.manager.Connect(ctx); err != nil {
		s.poller.Publish(link.Display{Enabled: true, Text: TextConnectFailed})
		return err
	}

	name := s.poller.DefaultName()
	if dev, ok := s.manager.Device(); ok && dev.Name != "" {
		name = dev.Name
	}
	s.poller.Publish(link.Describe(true, true, true, name))
	return nil
}

// Disconnect closes the session with the mixer.
func (s *Session) Disconnect() {
	s.manager.Disconnect()
	s.poller.Trigger()
}

// Close stops the background work and disconnects. It is safe to call more
// than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.manager.Disconnect()
	})
	return nil
}

// Done is closed once Close has been called.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) Manager() *link.Manager { return s.manager }

func (s *Session) Poller() *link.Poller { return s.poller }

func (s *Session) Modes() *Modes { return s.modes }

// Telemetry returns the RPM history, or nil when no monitor is attached.
func (s *Session) Telemetry() *monitor.History { return s.telemetry }

// DeviceInfo is a paired device and whether the matcher selects it.
type DeviceInfo struct {
	link.PairedDevice
	Match bool `json:"match"`
}

// Devices lists the paired devices.
func (s *Session) Devices() ([]DeviceInfo, error) {
	m := s.manager.Matcher()
	platform := s.manager.Platform()
	if !platform.PermissionGranted() {
		return nil, link.ErrPermissionDenied
	}
	devices, err := platform.PairedDevices()
	if err != nil {
		return nil, err
	}
	out := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		out = append(out, DeviceInfo{PairedDevice: d, Match: m.Match(d)})
	}
	return out, nil
}

// Snapshot is the full observable state of the Session.
type Snapshot struct {
	Status  string             `json:"status"`
	Display link.Display       `json:"display"`
	Device  *link.PairedDevice `json:"device,omitempty"`
	Manual  ManualState        `json:"manual"`
	Auto    AutoState          `json:"auto"`
}

// Snapshot returns the current state without touching the radio.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Status:  s.manager.Status().String(),
		Display: s.poller.Display(),
	}
	if dev, ok := s.manager.Device(); ok {
		snap.Device = &dev
	}
	snap.Manual, snap.Auto = s.modes.Snapshot()
	return snap
}
