// Package monitor reads the mixer controller's USB serial log: it echoes a
// thinned-out copy of the lines and keeps a history of the reported RPM.
package monitor

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/chaz8081/mixerctl/internal/link/protocol"
)

// Console processes controller log lines.
type Console struct {
	out      io.Writer // nil disables echo
	lineSkip int
	history  *History
	now      func() time.Time
	started  time.Time
	counter  int
}

// NewConsole creates a Console that echoes one of every lineSkip non-empty
// lines to out and records RPM values into history.
func NewConsole(out io.Writer, lineSkip int, history *History) *Console {
	if lineSkip <= 0 {
		lineSkip = 1
	}
	c := &Console{out: out, lineSkip: lineSkip, history: history, now: time.Now}
	c.started = c.now()
	return c
}

// Handle processes a single line.
func (c *Console) Handle(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	now := c.now()

	c.counter++
	if c.counter >= c.lineSkip {
		c.counter = 0
		if c.out != nil {
			fmt.Fprintf(c.out, "[%s] %s\n", now.Format("15:04:05"), line)
		}
	}

	if rpm, ok := protocol.ParseRPM(line); ok && c.history != nil {
		c.history.Add(Sample{Time: now, Elapsed: now.Sub(c.started).Seconds(), RPM: rpm})
	}
}

// Run reads lines from r until EOF or a read error. A nil error means EOF.
func (c *Console) Run(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		c.Handle(sc.Text())
	}
	if err := sc.Err(); err != nil {
		slog.Debug("[MONITOR] read stopped", "error", err)
		return fmt.Errorf("monitor: read: %w", err)
	}
	return nil
}
