//go:build windows

package patch

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

func lockHandle(fp *os.File) error {
	err := windows.LockFileEx(windows.Handle(fp.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, new(windows.Overlapped))
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return ErrLocked
	}
	return ioFailure(err)
}

func unlockHandle(fp *os.File) error {
	return windows.UnlockFileEx(windows.Handle(fp.Fd()), 0, 1, 0, new(windows.Overlapped))
}
