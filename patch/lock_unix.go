//go:build unix

package patch

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func lockHandle(fp *os.File) error {
	err := unix.Flock(int(fp.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrLocked
	}
	return ioFailure(err)
}

func unlockHandle(fp *os.File) error {
	return unix.Flock(int(fp.Fd()), unix.LOCK_UN)
}
