//go:build unix

package local

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/hupe1980/graphid/internal/fs"
)

func tryLock(f fs.File) (bool, error) {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return false, nil
	}
	return err == nil, err
}

func unlock(f fs.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
