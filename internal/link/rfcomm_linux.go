//go:build linux

package link

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// parseBDAddr converts "AA:BB:CC:DD:EE:FF" into the little-endian byte order
// the kernel expects in sockaddr_rc.
func parseBDAddr(s string) ([6]uint8, error) {
	var addr [6]uint8
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return addr, fmt.Errorf("invalid bluetooth address %q", s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return addr, fmt.Errorf("invalid bluetooth address %q", s)
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return addr, fmt.Errorf("invalid bluetooth address %q", s)
		}
		addr[5-i] = uint8(b)
	}
	return addr, nil
}

// permissionErr maps socket errno values that mean "not allowed" onto
// ErrPermissionDenied.
func permissionErr(op string, err error) error {
	if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// canOpenRFCOMM probes whether this process may create RFCOMM sockets.
// Kernels without Bluetooth support are not a permission problem; Dial
// reports those.
func canOpenRFCOMM() bool {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return !errors.Is(err, unix.EACCES) && !errors.Is(err, unix.EPERM)
	}
	unix.Close(fd)
	return true
}

func closeFD(fd int) {
	_ = unix.Close(fd)
}

// newFileTransport wraps a connected stream socket. The fd is switched to
// non-blocking mode so the runtime poller handles it and write deadlines work.
func newFileTransport(fd int, name string) (Transport, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}
	return os.NewFile(uintptr(fd), name), nil
}

// dialRFCOMM connects a raw RFCOMM socket to channel on address.
func dialRFCOMM(ctx context.Context, address string, channel uint8) (Transport, error) {
	addr, err := parseBDAddr(address)
	if err != nil {
		return nil, err
	}
	if channel == 0 {
		channel = 1
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, permissionErr("rfcomm socket", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: addr, Channel: channel})
	}()

	select {
	case err := <-done:
		if err != nil {
			unix.Close(fd)
			return nil, permissionErr("rfcomm connect", err)
		}
	case <-ctx.Done():
		// Abort the pending connect; the fd is released once it returns.
		_ = unix.Shutdown(fd, unix.SHUT_RDWR)
		go func() {
			<-done
			unix.Close(fd)
		}()
		return nil, ctx.Err()
	}

	return newFileTransport(fd, "rfcomm:"+address)
}
