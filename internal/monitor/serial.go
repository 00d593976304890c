package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

// Options configures a serial Monitor.
type Options struct {
	Port     string
	Baud     int
	LineSkip int
	History  int
	Settle   time.Duration // wait after opening; the board resets when the port opens
}

// DefaultOptions returns the controller's console settings.
func DefaultOptions() Options {
	return Options{Baud: 115200, LineSkip: 3, History: 200, Settle: 2 * time.Second}
}

// Monitor reads the controller's serial console.
type Monitor struct {
	port    serial.Port
	console *Console
	history *History
}

// Open opens the serial port and waits for the board to settle. out receives
// the echoed lines and may be nil.
func Open(ctx context.Context, opts Options, out io.Writer) (*Monitor, error) {
	if opts.Port == "" {
		return nil, errors.New("monitor: no serial port configured")
	}
	if opts.Baud <= 0 {
		opts.Baud = 115200
	}

	port, err := serial.Open(opts.Port, &serial.Mode{
		BaudRate: opts.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("monitor: open %s: %w", opts.Port, err)
	}
	slog.Info("[MONITOR] serial port open", "port", opts.Port, "baud", opts.Baud)

	if opts.Settle > 0 {
		select {
		case <-ctx.Done():
			port.Close()
			return nil, ctx.Err()
		case <-time.After(opts.Settle):
		}
	}

	history := NewHistory(opts.History)
	return &Monitor{
		port:    port,
		console: NewConsole(out, opts.LineSkip, history),
		history: history,
	}, nil
}

// Run reads the console until ctx is done or the port fails. Cancellation
// closes the port and is not reported as an error.
func (m *Monitor) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { m.port.Close() })
	defer stop()

	err := m.console.Run(m.port)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = errors.New("monitor: serial port closed")
	}
	slog.Warn("[MONITOR] console stopped", "error", err)
	return err
}

// History returns the RPM history.
func (m *Monitor) History() *History {
	return m.history
}

// Close closes the serial port.
func (m *Monitor) Close() error {
	return m.port.Close()
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("monitor: list ports: %w", err)
	}
	return ports, nil
}
