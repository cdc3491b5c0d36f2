//go:build !unix

package local

import (
	"sync"

	"github.com/hupe1980/graphid/internal/fs"
)

// Without flock only goroutines of one process are serialized.
var processLock sync.Mutex

func tryLock(fs.File) (bool, error) {
	return processLock.TryLock(), nil
}

func unlock(fs.File) error {
	processLock.Unlock()
	return nil
}
