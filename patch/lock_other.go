//go:build !unix && !windows

package patch

import "os"

// No advisory locks here. Callers must run one operation per target at a
// time.
func lockHandle(fp *os.File) error {
	return nil
}

func unlockHandle(fp *os.File) error {
	return nil
}
