//go:build !windows

package state

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockExclusive blocks until this process holds the advisory lock on f.
// The returned func releases it.
func lockExclusive(f *os.File) (func(), error) {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return nil, err
	}
	return func() { _ = unix.Flock(fd, unix.LOCK_UN) }, nil
}
