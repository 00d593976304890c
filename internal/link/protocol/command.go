// Package protocol builds the pipe-delimited text commands understood by the
// mixer firmware and parses the telemetry lines it prints.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	manualMode = "MANUAL_MODE"
	autoMode   = "AUTO_MODE"
	start      = "START"
	stop       = "STOP"
	sep        = "|"
)

// Limits enforced on every encoded field.
const (
	MinSpeed  = 0
	MaxSpeed  = 100
	MinPeriod = 2
	MaxPeriod = 50
)

// Profile selects the speed pattern used in automatic mode.
type Profile int

const (
	ProfileRamp Profile = iota + 1
	ProfileSinusoidal
)

// Label returns the short name of the profile, as sent with ShortLabels.
func (p Profile) Label() string {
	return ShortLabels.Of(p)
}

// Labels are the literals sent on the wire for each profile.
type Labels struct {
	Ramp       string
	Sinusoidal string
}

var (
	// ShortLabels are the default wire labels.
	ShortLabels = Labels{Ramp: "Ramp", Sinusoidal: "Sinusoidal"}

	// AppLabels are the selector texts the Android app transmits verbatim.
	// Use them with firmware that compares against those strings.
	AppLabels = Labels{Ramp: "Water-Based (Rampa)", Sinusoidal: "Oil (Sinusoidal)"}
)

// ParseLabels resolves a label set name: "short" (or empty) or "app".
func ParseLabels(name string) (Labels, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "short":
		return ShortLabels, nil
	case "app":
		return AppLabels, nil
	}
	return Labels{}, fmt.Errorf("protocol: unknown profile label set %q (want short or app)", name)
}

// Of returns the label for p, or "" for an unknown profile.
func (l Labels) Of(p Profile) string {
	switch p {
	case ProfileRamp:
		return l.Ramp
	case ProfileSinusoidal:
		return l.Sinusoidal
	}
	return ""
}

func (p Profile) String() string {
	if l := p.Label(); l != "" {
		return l
	}
	return fmt.Sprintf("Profile(%d)", int(p))
}

// ParseProfile accepts the wire labels as well as the labels shown by the
// mobile app ("Water-Based (Rampa)", "Oil (Sinusoidal)").
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ramp", "rampa", "water", "water-based", "waterbased", "water-based (rampa)":
		return ProfileRamp, nil
	case "sinusoidal", "sine", "oil", "oil (sinusoidal)":
		return ProfileSinusoidal, nil
	}
	return 0, &FieldError{Field: "profile", Value: s, Reason: "unknown profile"}
}

// FieldError reports a command field that cannot be encoded.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("protocol: %s %q: %s", e.Field, e.Value, e.Reason)
}

// ErrEmpty is returned by ParseNumber for an empty field.
var ErrEmpty = errors.New("empty")

// ParseNumber parses an unsigned decimal made of ASCII digits only. Signs,
// spaces and other characters are rejected.
func ParseNumber(field, s string) (int, error) {
	if s == "" {
		return 0, &FieldError{Field: field, Value: s, Reason: ErrEmpty.Error()}
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, &FieldError{Field: field, Value: s, Reason: "not a decimal number"}
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &FieldError{Field: field, Value: s, Reason: "out of range"}
	}
	return n, nil
}

// ManualParams are the manual mode parameters.
type ManualParams struct {
	Speed int
}

// AutoParams are the automatic mode parameters.
type AutoParams struct {
	Profile       Profile
	MinSpeed      int
	MaxSpeed      int
	PeriodSeconds int
}

func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &FieldError{
			Field:  field,
			Value:  strconv.Itoa(v),
			Reason: fmt.Sprintf("must be within %d..%d", lo, hi),
		}
	}
	return nil
}

// Validate checks the manual parameters without encoding them.
func (p ManualParams) Validate() error {
	return checkRange("speed", p.Speed, MinSpeed, MaxSpeed)
}

// Validate checks the automatic parameters without encoding them.
func (p AutoParams) Validate() error {
	if p.Profile.Label() == "" {
		return &FieldError{Field: "profile", Value: p.Profile.String(), Reason: "unknown profile"}
	}
	if err := checkRange("min_speed", p.MinSpeed, MinSpeed, MaxSpeed); err != nil {
		return err
	}
	if err := checkRange("max_speed", p.MaxSpeed, MinSpeed, MaxSpeed); err != nil {
		return err
	}
	if p.MinSpeed > p.MaxSpeed {
		return &FieldError{
			Field:  "min_speed",
			Value:  strconv.Itoa(p.MinSpeed),
			Reason: fmt.Sprintf("greater than max_speed %d", p.MaxSpeed),
		}
	}
	return checkRange("period", p.PeriodSeconds, MinPeriod, MaxPeriod)
}

// ManualStart encodes "MANUAL_MODE|START|<speed>".
func ManualStart(speed int) (string, error) {
	p := ManualParams{Speed: speed}
	if err := p.Validate(); err != nil {
		return "", err
	}
	return join(manualMode, start, strconv.Itoa(speed)), nil
}

// ManualStop encodes "MANUAL_MODE|STOP".
func ManualStop() string {
	return join(manualMode, stop)
}

// AutoStart encodes "AUTO_MODE|START|<profile>|<min>|<max>|<period>" with
// ShortLabels.
func AutoStart(p AutoParams) (string, error) {
	return ShortLabels.AutoStart(p)
}

// AutoStart encodes an automatic start using l for the profile field.
func (l Labels) AutoStart(p AutoParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	label := l.Of(p.Profile)
	if label == "" || strings.ContainsAny(label, sep+"\r\n") {
		return "", &FieldError{Field: "profile", Value: label, Reason: "invalid wire label"}
	}
	return join(autoMode, start,
		label,
		strconv.Itoa(p.MinSpeed),
		strconv.Itoa(p.MaxSpeed),
		strconv.Itoa(p.PeriodSeconds),
	), nil
}

// AutoStop encodes "AUTO_MODE|STOP".
func AutoStop() string {
	return join(autoMode, stop)
}

func join(fields ...string) string {
	return strings.Join(fields, sep)
}
