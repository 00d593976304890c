//go:build linux

package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

const (
	busName             = "org.bluez"
	adapterIface        = "org.bluez.Adapter1"
	deviceIface         = "org.bluez.Device1"
	profileIface        = "org.bluez.Profile1"
	profileManagerIface = "org.bluez.ProfileManager1"
	propsIface          = "org.freedesktop.DBus.Properties"
	objectManagerIface  = "org.freedesktop.DBus.ObjectManager"

	errAccessDenied  = "org.freedesktop.DBus.Error.AccessDenied"
	errAlreadyExists = "org.bluez.Error.AlreadyExists"

	profilePath = dbus.ObjectPath("/org/bluez/mixerctl/serial")
)

// BlueZOptions configures the Linux platform.
type BlueZOptions struct {
	Adapter   string // e.g. "hci0"
	Transport string // "profile" or "rfcomm"
	Channel   uint8  // RFCOMM channel for Transport "rfcomm"
}

// BlueZ implements Platform on top of the BlueZ D-Bus API.
type BlueZ struct {
	conn *dbus.Conn
	opts BlueZOptions

	mu      sync.Mutex
	profile *serialProfile
}

var _ Platform = (*BlueZ)(nil)

// NewBlueZ connects to the system bus and checks that bluetoothd is running.
func NewBlueZ(opts BlueZOptions) (*BlueZ, error) {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if opts.Transport == "" {
		opts.Transport = "profile"
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("link: connect to system bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("link: list bus names: %w", err)
	}
	if !slices.Contains(names, busName) {
		conn.Close()
		return nil, errors.New("link: org.bluez not found on system bus, is bluetooth.service running?")
	}
	return &BlueZ{conn: conn, opts: opts}, nil
}

// Close releases the bus connection.
func (b *BlueZ) Close() error {
	b.mu.Lock()
	if b.profile != nil {
		b.conn.Object(busName, "/org/bluez").Call(profileManagerIface+".UnregisterProfile", 0, profilePath)
		b.profile = nil
	}
	b.mu.Unlock()
	return b.conn.Close()
}

func (b *BlueZ) adapterPath() dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + b.opts.Adapter)
}

// devicePath converts "AA:BB:CC:DD:EE:FF" to /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func (b *BlueZ) devicePath(addr string) dbus.ObjectPath {
	return dbus.ObjectPath(string(b.adapterPath()) + "/dev_" + strings.ReplaceAll(strings.ToUpper(addr), ":", "_"))
}

func getProperty[T any](conn *dbus.Conn, path dbus.ObjectPath, iface, prop string) (T, error) {
	var zero T
	v, err := conn.Object(busName, path).GetProperty(iface + "." + prop)
	if err != nil {
		return zero, err
	}
	val, ok := v.Value().(T)
	if !ok {
		return zero, fmt.Errorf("property %s.%s has unexpected type %T", iface, prop, v.Value())
	}
	return val, nil
}

func dbusErrorName(err error) string {
	var v dbus.Error
	if errors.As(err, &v) {
		return v.Name
	}
	var p *dbus.Error
	if errors.As(err, &p) {
		return p.Name
	}
	return ""
}

// AdapterEnabled reports whether the adapter is powered.
func (b *BlueZ) AdapterEnabled() bool {
	powered, err := getProperty[bool](b.conn, b.adapterPath(), adapterIface, "Powered")
	if err != nil {
		slog.Debug("[LINK] read adapter power", "adapter", b.opts.Adapter, "error", err)
		return false
	}
	return powered
}

// PermissionGranted reports whether the bus policy lets us read devices and
// the kernel lets us open RFCOMM sockets.
func (b *BlueZ) PermissionGranted() bool {
	err := b.conn.Object(busName, "/").Call(objectManagerIface+".GetManagedObjects", 0).Err
	if err != nil && dbusErrorName(err) == errAccessDenied {
		return false
	}
	return canOpenRFCOMM()
}

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// PairedDevices lists the bonded devices of the adapter sorted by address.
func (b *BlueZ) PairedDevices() ([]PairedDevice, error) {
	var objects managedObjects
	call := b.conn.Object(busName, "/").Call(objectManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		if dbusErrorName(call.Err) == errAccessDenied {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", err)
	}

	prefix := string(b.adapterPath()) + "/"
	var devices []PairedDevice
	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		if paired, _ := props["Paired"].Value().(bool); !paired {
			continue
		}
		addr, _ := props["Address"].Value().(string)
		if addr == "" {
			continue
		}
		name, _ := props["Name"].Value().(string)
		if name == "" {
			name, _ = props["Alias"].Value().(string)
		}
		devices = append(devices, PairedDevice{Name: name, Address: addr})
	}

	slices.SortFunc(devices, func(a, b PairedDevice) int {
		return strings.Compare(a.Address, b.Address)
	})
	return devices, nil
}

// Dial opens a stream to service on dev.
func (b *BlueZ) Dial(ctx context.Context, dev PairedDevice, service bluetooth.UUID) (Transport, error) {
	if b.opts.Transport == "rfcomm" {
		return dialRFCOMM(ctx, dev.Address, b.opts.Channel)
	}
	return b.dialProfile(ctx, dev, service)
}

// serialProfile is the org.bluez.Profile1 object BlueZ hands connected
// sockets to.
type serialProfile struct {
	conns chan profileConn
}

type profileConn struct {
	device dbus.ObjectPath
	fd     dbus.UnixFD
}

func (p *serialProfile) NewConnection(device dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	select {
	case p.conns <- profileConn{device: device, fd: fd}:
	default:
		slog.Warn("[LINK] unexpected profile connection, closing", "device", device)
		closeFD(int(fd))
	}
	return nil
}

func (p *serialProfile) RequestDisconnection(device dbus.ObjectPath) *dbus.Error {
	slog.Debug("[LINK] profile disconnection requested", "device", device)
	return nil
}

func (p *serialProfile) Release() *dbus.Error {
	return nil
}

// registerProfile exports the client profile for service once per BlueZ.
func (b *BlueZ) registerProfile(service bluetooth.UUID) (*serialProfile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.profile != nil {
		return b.profile, nil
	}

	p := &serialProfile{conns: make(chan profileConn, 1)}
	if err := b.conn.Export(p, profilePath, profileIface); err != nil {
		return nil, fmt.Errorf("export profile: %w", err)
	}

	opts := map[string]dbus.Variant{
		"Name":        dbus.MakeVariant("mixerctl serial port"),
		"Role":        dbus.MakeVariant("client"),
		"AutoConnect": dbus.MakeVariant(false),
	}
	err := b.conn.Object(busName, "/org/bluez").Call(profileManagerIface+".RegisterProfile", 0, profilePath, service.String(), opts).Err
	if err != nil && dbusErrorName(err) != errAlreadyExists {
		if dbusErrorName(err) == errAccessDenied {
			return nil, fmt.Errorf("%w: RegisterProfile: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("RegisterProfile: %w", err)
	}
	b.profile = p
	return p, nil
}

func (b *BlueZ) dialProfile(ctx context.Context, dev PairedDevice, service bluetooth.UUID) (Transport, error) {
	p, err := b.registerProfile(service)
	if err != nil {
		return nil, err
	}

	// Drop a connection left over from an abandoned attempt.
	select {
	case stale := <-p.conns:
		closeFD(int(stale.fd))
	default:
	}

	path := b.devicePath(dev.Address)
	call := b.conn.Object(busName, path).CallWithContext(ctx, deviceIface+".ConnectProfile", 0, service.String())
	if call.Err != nil {
		return nil, fmt.Errorf("ConnectProfile %s: %w", dev.Address, call.Err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case c := <-p.conns:
			if c.device != path {
				closeFD(int(c.fd))
				continue
			}
			return newFileTransport(int(c.fd), "spp:"+dev.Address)
		}
	}
}

// Watch calls changed whenever the adapter is powered on or off or a device
// connects or disconnects, until ctx is done.
func (b *BlueZ) Watch(ctx context.Context, changed func()) error {
	rule := "type='signal',interface='" + propsIface + "',member='PropertiesChanged',path_namespace='/org/bluez'"
	if err := b.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return fmt.Errorf("link: add match: %w", err)
	}

	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)

	go func() {
		defer func() {
			b.conn.RemoveSignal(ch)
			b.conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, rule)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-ch:
				if !ok {
					return
				}
				if relevantChange(sig) {
					changed()
				}
			}
		}
	}()
	return nil
}

// relevantChange filters PropertiesChanged signals down to adapter power and
// device connection changes.
func relevantChange(sig *dbus.Signal) bool {
	if sig.Name != propsIface+".PropertiesChanged" || len(sig.Body) < 2 {
		return false
	}
	iface, _ := sig.Body[0].(string)
	props, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false
	}
	switch iface {
	case adapterIface:
		_, ok = props["Powered"]
	case deviceIface:
		_, ok = props["Connected"]
	default:
		ok = false
	}
	return ok
}
