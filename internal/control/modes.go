package control

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/chaz8081/mixerctl/internal/link/protocol"
)

// Sender transmits one encoded command line.
type Sender interface {
	Send(command string) error
}

// ErrIncomplete is returned when an automatic start is missing a field.
var ErrIncomplete = errors.New("control: profile, min_speed, max_speed and period are required")

// ManualState is the manual mode as last acknowledged by a successful send.
type ManualState struct {
	Speed   int  `json:"speed"`
	Running bool `json:"running"`
}

// AutoState is the automatic mode as last acknowledged by a successful send.
type AutoState struct {
	Profile  string `json:"profile"`
	MinSpeed int    `json:"min_speed"`
	MaxSpeed int    `json:"max_speed"`
	Period   int    `json:"period"`
	Running  bool   `json:"running"`
}

// AutoForm holds automatic mode fields as typed by the user.
type AutoForm struct {
	Profile  string `json:"profile"`
	MinSpeed string `json:"min_speed"`
	MaxSpeed string `json:"max_speed"`
	Period   string `json:"period"`
}

// Params validates the form. All four fields are required.
func (f AutoForm) Params() (protocol.AutoParams, error) {
	if f.Profile == "" || f.MinSpeed == "" || f.MaxSpeed == "" || f.Period == "" {
		return protocol.AutoParams{}, ErrIncomplete
	}

	profile, err := protocol.ParseProfile(f.Profile)
	if err != nil {
		return protocol.AutoParams{}, err
	}
	minSpeed, err := protocol.ParseNumber("min_speed", f.MinSpeed)
	if err != nil {
		return protocol.AutoParams{}, err
	}
	maxSpeed, err := protocol.ParseNumber("max_speed", f.MaxSpeed)
	if err != nil {
		return protocol.AutoParams{}, err
	}
	period, err := protocol.ParseNumber("period", f.Period)
	if err != nil {
		return protocol.AutoParams{}, err
	}

	p := protocol.AutoParams{
		Profile:       profile,
		MinSpeed:      minSpeed,
		MaxSpeed:      maxSpeed,
		PeriodSeconds: period,
	}
	return p, p.Validate()
}

// Modes tracks the manual and automatic modes. A running flag changes only
// after the corresponding command was sent successfully.
type Modes struct {
	sender Sender
	labels protocol.Labels

	mu     sync.Mutex
	manual ManualState
	auto   AutoState
}

// NewModes creates Modes that send through sender, naming automatic
// profiles with labels (ShortLabels when zero).
// Panics if sender is nil (programmer error).
func NewModes(sender Sender, labels protocol.Labels) *Modes {
	if sender == nil {
		panic("control: NewModes called with nil sender")
	}
	if labels == (protocol.Labels{}) {
		labels = protocol.ShortLabels
	}
	return &Modes{sender: sender, labels: labels}
}

// StartManual runs the mixer at a fixed speed.
func (m *Modes) StartManual(speed int) error {
	cmd, err := protocol.ManualStart(speed)
	if err != nil {
		return err
	}
	if err := m.send(cmd); err != nil {
		return err
	}
	m.mu.Lock()
	m.manual = ManualState{Speed: speed, Running: true}
	m.mu.Unlock()
	return nil
}

// StopManual stops manual mode.
func (m *Modes) StopManual() error {
	if err := m.send(protocol.ManualStop()); err != nil {
		return err
	}
	m.mu.Lock()
	m.manual.Running = false
	m.mu.Unlock()
	return nil
}

// StartAuto starts the automatic profile described by form.
func (m *Modes) StartAuto(form AutoForm) error {
	p, err := form.Params()
	if err != nil {
		return err
	}
	cmd, err := m.labels.AutoStart(p)
	if err != nil {
		return err
	}
	if err := m.send(cmd); err != nil {
		return err
	}
	m.mu.Lock()
	m.auto = AutoState{
		Profile:  p.Profile.Label(),
		MinSpeed: p.MinSpeed,
		MaxSpeed: p.MaxSpeed,
		Period:   p.PeriodSeconds,
		Running:  true,
	}
	m.mu.Unlock()
	return nil
}

// StopAuto stops automatic mode.
func (m *Modes) StopAuto() error {
	if err := m.send(protocol.AutoStop()); err != nil {
		return err
	}
	m.mu.Lock()
	m.auto.Running = false
	m.mu.Unlock()
	return nil
}

// Snapshot returns both modes.
func (m *Modes) Snapshot() (ManualState, AutoState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manual, m.auto
}

func (m *Modes) send(cmd string) error {
	if err := m.sender.Send(cmd); err != nil {
		slog.Warn("[API] command not sent", "command", cmd, "error", err)
		return err
	}
	slog.Info("[API] command sent", "command", cmd)
	return nil
}
