package patch

import "os"

const lockSuffix = ".lock"

// A fileLock is an exclusive advisory lock serializing operations on one
// target. It is held on a separate file next to the target, because the
// target itself is replaced by rename and a lock on it would not outlive the
// first write. The lock file is left in place when the lock is released.
type fileLock struct {
	fp *os.File
}

// lockFile takes the lock for the named target, or fails with ErrLocked if
// another operation holds it.
func lockFile(name string) (*fileLock, error) {
	fp, err := os.OpenFile(name+lockSuffix, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, ioFailure(err)
	}
	if err := lockHandle(fp); err != nil {
		fp.Close()
		return nil, wrapError(err, name)
	}
	return &fileLock{fp: fp}, nil
}

// unlock releases the lock. It is safe to call more than once.
func (l *fileLock) unlock() error {
	if l.fp == nil {
		return nil
	}
	err := unlockHandle(l.fp)
	if cerr := l.fp.Close(); err == nil {
		err = cerr
	}
	l.fp = nil
	return ioFailure(err)
}
