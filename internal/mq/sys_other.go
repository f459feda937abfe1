//go:build !linux

package mq

import (
	"errors"
	"os"
	"time"
)

var errAgain = errors.New("resource temporarily unavailable")

func sysOpen(name string, capacity, msgSize int, perm os.FileMode) (int, error) {
	return -1, ErrUnsupported
}

func sysAttr(fd int) (Attributes, error) {
	return Attributes{}, ErrUnsupported
}

func sysSend(fd int, payload []byte, priority uint) error {
	return ErrUnsupported
}

func sysReceive(fd int, buf []byte) (int, uint, error) {
	return 0, 0, ErrUnsupported
}

func sysWait(fd int, ready readiness, timeout time.Duration) error {
	return ErrUnsupported
}

func sysIdentity(fd int) (identity, error) {
	return identity{}, ErrUnsupported
}

func sysUnlinked(fd int) (bool, error) {
	return false, ErrUnsupported
}

func sysLookup(name string) (identity, bool, error) {
	return identity{}, false, ErrUnsupported
}

func sysUnlink(name string) error {
	return ErrUnsupported
}

func sysClose(fd int) error {
	return nil
}
