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
)

// Sentinel errors for materialization.
var (
	// ErrNoSnapshot indicates the storage has no latest pointer yet.
	// Callers treat it as "no prior state".
	ErrNoSnapshot = errors.New("no snapshot")

	// ErrCorruptSnapshot indicates a pointer, sidecar or binary blob that
	// cannot be read back into a graph.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrStorageLocked indicates another process holds the storage lock.
	ErrStorageLocked = errors.New("storage locked by another process")

	// ErrInvalidKeep indicates a negative retention count.
	ErrInvalidKeep = errors.New("keep count must not be negative")
)

// StorageLockError describes a storage lock conflict.
//
// # Fields
//
//   - Path: The lock file.
//   - HolderPID: Process id recorded by the holder, 0 if unknown.
type StorageLockError struct {
	Path      string
	HolderPID int
}

// Error returns a human-readable error message.
func (e *StorageLockError) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("%s is held by PID %d: %v", e.Path, e.HolderPID, ErrStorageLocked)
	}
	return fmt.Sprintf("%s is held: %v", e.Path, ErrStorageLocked)
}

// Unwrap returns ErrStorageLocked for errors.Is support.
func (e *StorageLockError) Unwrap() error {
	return ErrStorageLocked
}
