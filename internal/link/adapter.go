// Package link manages the classic Bluetooth serial (RFCOMM/SPP) session with
// the ESP32 mixer controller. It handles device selection, connection state,
// command transmission and the periodic status check.
package link

import (
	"context"
	"io"

	"tinygo.org/x/bluetooth"
)

// SerialPortUUID is the Serial Port Profile service class,
// 00001101-0000-1000-8000-00805f9b34fb.
var SerialPortUUID = bluetooth.New16BitUUID(0x1101)

// PairedDevice is a bonded device reported by the platform.
type PairedDevice struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Transport is an open stream to the device.
type Transport interface {
	io.Writer
	io.Closer
}

// Platform abstracts the host Bluetooth stack for testing.
type Platform interface {
	// AdapterEnabled reports whether the local adapter is powered.
	AdapterEnabled() bool
	// PermissionGranted reports whether this process may read device
	// names and open sockets.
	PermissionGranted() bool
	// PairedDevices lists bonded devices, sorted by address.
	PairedDevices() ([]PairedDevice, error)
	// Dial opens a stream to the given service on the device. It may block
	// until ctx is done.
	Dial(ctx context.Context, dev PairedDevice, service bluetooth.UUID) (Transport, error)
}
