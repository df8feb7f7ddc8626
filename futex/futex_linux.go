//go:build linux

package futex

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Real futex(2) op codes; only the private variants are used since every
// butex lives in this process's address space (never shared cross-process
// via shared memory, which this port does not support).
//
// golang.org/x/sys/unix does not export these op-code constants (only the
// newer FUTEX_WAIT/FUTEX_WAKE syscall numbers used by the futex_waitv-style
// API), so the raw linux/futex.h values are reproduced here.
const (
	_FUTEX_WAIT         = 0
	_FUTEX_WAKE         = 1
	_FUTEX_PRIVATE_FLAG = 128

	futexWaitPrivate = _FUTEX_WAIT | _FUTEX_PRIVATE_FLAG
	futexWakePrivate = _FUTEX_WAKE | _FUTEX_PRIVATE_FLAG
)

func wait(addr *int32, expected int32, timeout *time.Duration) error {
	var ts *unix.Timespec
	if timeout != nil {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	for {
		_, _, errno := unix.Syscall6(
			unix.SYS_FUTEX,
			uintptr(unsafe.Pointer(addr)),
			uintptr(futexWaitPrivate),
			uintptr(uint32(expected)),
			uintptr(unsafe.Pointer(ts)),
			0, 0,
		)
		switch errno {
		case 0, unix.EAGAIN:
			// EAGAIN means *addr != expected already, which the
			// caller treats the same as a normal wakeup: recheck
			// and decide what happened.
			return nil
		case unix.EINTR:
			// Spurious wakeups just loop back around to recheck.
			continue
		case unix.ETIMEDOUT:
			return ErrTimedOut
		default:
			return errnoError(errno)
		}
	}
}

func wake(addr *int32, n int) int {
	r, _, errno := unix.Syscall(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWakePrivate),
		uintptr(n),
	)
	if errno != 0 {
		// The address may already be unmapped/reused by the time we
		// wake it (the waiter's stack-equivalent storage can be
		// reclaimed the instant it observes the signal) - treat
		// that race as "woke nobody" rather than an error.
		return 0
	}
	return int(r)
}

func errnoError(errno unix.Errno) error {
	if errno == 0 {
		return nil
	}
	return errno
}
