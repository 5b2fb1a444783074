//go:build windows

package daemon

import (
	"fmt"
	"os"
	"path/filepath"
)

type runLock struct {
	f    *os.File
	path string
}

func acquireLock(lockFile string) (*runLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockFile), 0o755); err != nil {
		return nil, err
	}
	// Exclusive create: only one process can hold the file.
	f, err := os.OpenFile(lockFile, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("specq is already running (could not acquire lock)")
		}
		return nil, err
	}
	return &runLock{f: f, path: lockFile}, nil
}

func (l *runLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = l.f.Close()
	_ = os.Remove(l.path)
}
