package protocol

import (
	"strconv"
	"strings"
)

const rpmMarker = "RPM:"

// ParseRPM extracts the motor speed from a firmware log line such as
// "Vel: 42% RPM: 1234.5 PWM: 107". The second result is false when the line
// carries no readable RPM value.
func ParseRPM(line string) (float64, bool) {
	_, rest, ok := strings.Cut(line, rpmMarker)
	if !ok {
		return 0, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
