//go:build linux

package mq

import (
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// errAgain is what the non-blocking descriptor reports when the queue is
// full on send or empty on receive.
var errAgain error = unix.EAGAIN

// queueAttr mirrors struct mq_attr. Its fields are C longs, which match the
// width of Go's int on every Linux target.
type queueAttr struct {
	Flags   int
	MaxMsg  int
	MsgSize int
	CurMsgs int
	_       [4]int
}

// emptyPayload backs the buffer pointer for zero-length sends.
var emptyPayload byte

// sysOpen opens name with O_CREAT, so an existing queue is attached rather
// than rejected. The descriptor is non-blocking; waits go through sysWait.
func sysOpen(name string, capacity, msgSize int, perm os.FileMode) (int, error) {
	p, err := unix.BytePtrFromString(name)
	if err != nil {
		return -1, err
	}

	attr := queueAttr{MaxMsg: capacity, MsgSize: msgSize}
	flags := unix.O_RDWR | unix.O_CREAT | unix.O_NONBLOCK | unix.O_CLOEXEC

	fd, _, errno := unix.Syscall6(unix.SYS_MQ_OPEN,
		uintptr(unsafe.Pointer(p)),
		uintptr(flags),
		uintptr(perm.Perm()),
		uintptr(unsafe.Pointer(&attr)),
		0, 0)
	if errno != 0 {
		return -1, errno
	}
	return int(fd), nil
}

func sysAttr(fd int) (Attributes, error) {
	var attr queueAttr
	_, _, errno := unix.Syscall(unix.SYS_MQ_GETSETATTR, uintptr(fd), 0, uintptr(unsafe.Pointer(&attr)))
	if errno != 0 {
		return Attributes{}, errno
	}
	return Attributes{
		Capacity:       attr.MaxMsg,
		MaxMessageSize: attr.MsgSize,
		Current:        attr.CurMsgs,
	}, nil
}

func sysSend(fd int, payload []byte, priority uint) error {
	p := unsafe.Pointer(&emptyPayload)
	if len(payload) > 0 {
		p = unsafe.Pointer(&payload[0])
	}
	_, _, errno := unix.Syscall6(unix.SYS_MQ_TIMEDSEND,
		uintptr(fd),
		uintptr(p),
		uintptr(len(payload)),
		uintptr(priority),
		0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// sysReceive requires len(buf) to be at least the queue's message size.
func sysReceive(fd int, buf []byte) (int, uint, error) {
	var prio uint32
	n, _, errno := unix.Syscall6(unix.SYS_MQ_TIMEDRECEIVE,
		uintptr(fd),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&prio)),
		0, 0)
	if errno != 0 {
		return 0, 0, errno
	}
	return int(n), uint(prio), nil
}

// sysWait polls the descriptor for up to timeout. A timeout or an
// interrupted poll is not an error; the caller simply retries.
func sysWait(fd int, ready readiness, timeout time.Duration) error {
	events := int16(unix.POLLIN)
	if ready == writable {
		events = unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}

	if _, err := unix.Poll(fds, int(timeout/time.Millisecond)); err != nil && err != unix.EINTR {
		return err
	}
	return nil
}

func sysIdentity(fd int) (identity, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return identity{}, err
	}
	return identity{dev: uint64(st.Dev), ino: uint64(st.Ino)}, nil
}

// sysUnlinked reports whether the object behind fd has lost its name.
// Unlinking drops the link count of a queue inode to zero.
func sysUnlinked(fd int) (bool, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false, err
	}
	return st.Nlink == 0, nil
}

// sysLookup resolves name to the object currently registered under it.
// ok is false when nothing is registered.
func sysLookup(name string) (identity, bool, error) {
	p, err := unix.BytePtrFromString(name)
	if err != nil {
		return identity{}, false, err
	}

	fd, _, errno := unix.Syscall6(unix.SYS_MQ_OPEN,
		uintptr(unsafe.Pointer(p)),
		uintptr(unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC),
		0, 0, 0, 0)
	if errno == unix.ENOENT {
		return identity{}, false, nil
	}
	if errno != 0 {
		return identity{}, false, errno
	}
	defer unix.Close(int(fd))

	id, err := sysIdentity(int(fd))
	if err != nil {
		return identity{}, false, err
	}
	return id, true, nil
}

func sysUnlink(name string) error {
	p, err := unix.BytePtrFromString(name)
	if err != nil {
		return err
	}

	_, _, errno := unix.Syscall(unix.SYS_MQ_UNLINK, uintptr(unsafe.Pointer(p)), 0, 0)
	switch errno {
	case 0:
		return nil
	case unix.ENOENT:
		return ErrNotFound
	default:
		return errno
	}
}

func sysClose(fd int) error {
	return unix.Close(fd)
}
