// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package materialize

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// lockFileName is the advisory lock file inside a storage directory.
const lockFileName = ".lock"

// errLockHeld is returned by the platform lockFile when another handle
// holds the lock.
var errLockHeld = errors.New("lock held")

// storageLock is an exclusive, non-blocking advisory lock on a storage
// directory. The holder writes its PID into the file for diagnostics.
//
// The lock is released when released explicitly or when the process exits.
type storageLock struct {
	f    *os.File
	path string
}

// acquireStorageLock takes the lock on dir.
//
// Outputs:
//
//	*storageLock - The held lock.
//	error - *StorageLockError if another process holds it.
func acquireStorageLock(dir string) (*storageLock, error) {
	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0640)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := lockFile(f); err != nil {
		holder := readHolder(f)
		f.Close()
		if errors.Is(err, errLockHeld) {
			return nil, &StorageLockError{Path: path, HolderPID: holder}
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	// Best effort; the lock itself is what matters.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	}
	return &storageLock{f: f, path: path}, nil
}

func (l *storageLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := unlockFile(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return fmt.Errorf("unlock %s: %w", l.path, unlockErr)
	}
	return closeErr
}

// readHolder returns the PID recorded in the lock file, or 0.
func readHolder(f *os.File) int {
	data, err := io.ReadAll(io.NewSectionReader(f, 0, 32))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func ensureDir(dir string) error {
	if dir == "" {
		return errors.New("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create storage directory %s: %w", dir, err)
	}
	return nil
}
