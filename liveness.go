package dmxp

import (
	"os"
	"syscall"
)

// isProcessAlive reports whether pid names a live process, used by
// Producer/Consumer handles and the stall watchdog to distinguish a
// genuinely stuck peer from one that has exited without tidying up its
// side of the ring.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}

	if errno, ok := err.(syscall.Errno); ok && errno == syscall.ESRCH {
		return false
	}

	// EPERM means the process exists but we can't signal it; treat as
	// alive.
	return true
}

// currentPID returns this process's PID, truncated the same way a slot's
// SenderPID field is (uint32).
func currentPID() uint32 {
	return uint32(os.Getpid())
}
