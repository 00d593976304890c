//go:build !linux

package link

import (
	"context"
	"errors"

	"tinygo.org/x/bluetooth"
)

var errUnsupported = errors.New("link: BlueZ is only available on Linux")

// BlueZOptions configures the Linux platform.
type BlueZOptions struct {
	Adapter   string
	Transport string
	Channel   uint8
}

// BlueZ is unavailable on this OS; NewBlueZ always fails.
type BlueZ struct{}

var _ Platform = (*BlueZ)(nil)

func NewBlueZ(BlueZOptions) (*BlueZ, error) { return nil, errUnsupported }

func (*BlueZ) Close() error { return nil }
func (*BlueZ) AdapterEnabled() bool { return false }
func (*BlueZ) PermissionGranted() bool { return false }
func (*BlueZ) PairedDevices() ([]PairedDevice, error) { return nil, errUnsupported }
func (*BlueZ) Watch(context.Context, func()) error { return errUnsupported }

func (*BlueZ) Dial(context.Context, PairedDevice, bluetooth.UUID) (Transport, error) {
	return nil, errUnsupported
}
