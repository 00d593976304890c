package link

import (
	"fmt"
	"strings"
)

// Matcher selects the mixer among the paired devices.
type Matcher struct {
	Pattern     string // case-insensitive substring of the name, e.g. "ESP32"
	DefaultName string // exact name, e.g. "ESP32_Device"
	Address     string // optional MAC; when set only this device matches
}

// DefaultMatcher returns the matcher used by the mobile app.
func DefaultMatcher() Matcher {
	return Matcher{Pattern: "ESP32", DefaultName: "ESP32_Device"}
}

// Match reports whether dev is acceptable.
func (m Matcher) Match(dev PairedDevice) bool {
	if m.Address != "" {
		return strings.EqualFold(dev.Address, m.Address)
	}
	if m.Pattern != "" && strings.Contains(strings.ToLower(dev.Name), strings.ToLower(m.Pattern)) {
		return true
	}
	return m.DefaultName != "" && dev.Name == m.DefaultName
}

// Find returns the first matching device in list order.
func (m Matcher) Find(devices []PairedDevice) (PairedDevice, bool) {
	for _, d := range devices {
		if m.Match(d) {
			return d, true
		}
	}
	return PairedDevice{}, false
}

// Discover looks the mixer up among the platform's paired devices.
func Discover(p Platform, m Matcher) (PairedDevice, error) {
	if !p.PermissionGranted() {
		return PairedDevice{}, ErrPermissionDenied
	}
	devices, err := p.PairedDevices()
	if err != nil {
		return PairedDevice{}, fmt.Errorf("link: list paired devices: %w", err)
	}
	dev, ok := m.Find(devices)
	if !ok {
		return PairedDevice{}, ErrDeviceNotFound
	}
	return dev, nil
}
