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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	sidecarPrefix = "snapshot_"
	sidecarSuffix = ".json"
	latestFile    = "latest.json"
)

// FileBackend stores snapshots as flat files in one directory:
//
//	snapshot_<version>.bin   binary snapshot
//	snapshot_<version>.json  sidecar
//	latest.json              copy of the newest sidecar
//	.lock                    advisory lock held during Write and Cleanup,
//	                         or for as long as Hold keeps it
//
// Every file is written to a temp file, synced and renamed into place, and
// the directory is synced after the rename.
//
// Thread Safety:
//
//	Safe for concurrent use. Writers in other processes are excluded by
//	the storage lock; a held lock fails fast with ErrStorageLocked.
type FileBackend struct {
	dir    string
	logger *slog.Logger

	mu   sync.Mutex
	held *storageLock
}

// NewFileBackend creates the storage directory if needed.
func NewFileBackend(dir string, logger *slog.Logger) (*FileBackend, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileBackend{dir: dir, logger: logger}, nil
}

// Location returns the storage directory.
func (b *FileBackend) Location() string {
	return b.dir
}

// Close releases a lock still kept by Hold.
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock := b.held
	b.held = nil
	return lock.release()
}

// Hold takes the storage lock until the returned func is called. Write and
// Cleanup on b reuse it meanwhile, so a read-modify-write sequence is not
// interleaved with another process's writes.
//
// Outputs:
//
//	func() error - Releases the lock. Safe to call more than once.
//	error - *StorageLockError if another holder has the lock, or if b
//	        already holds it.
func (b *FileBackend) Hold() (func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held != nil {
		return nil, &StorageLockError{Path: b.held.path, HolderPID: os.Getpid()}
	}
	lock, err := acquireStorageLock(b.dir)
	if err != nil {
		return nil, err
	}
	b.held = lock
	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.held != lock {
			return nil
		}
		b.held = nil
		return lock.release()
	}, nil
}

// lock returns the unlock func for one Write or Cleanup. It is a no-op
// while Hold keeps the lock.
func (b *FileBackend) lock() (func(), error) {
	b.mu.Lock()
	held := b.held != nil
	b.mu.Unlock()
	if held {
		return func() {}, nil
	}
	lock, err := acquireStorageLock(b.dir)
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.release() }, nil
}

// Write stores the blob, then the sidecar, then the latest pointer.
func (b *FileBackend) Write(ctx context.Context, meta Metadata, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	sidecar, err := marshalMetadata(meta)
	if err != nil {
		return err
	}

	unlock, err := b.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := writeAtomic(filepath.Join(b.dir, meta.BinaryFile), blob); err != nil {
		return err
	}
	if err := writeAtomic(b.sidecarPath(meta.Version), sidecar); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(b.dir, latestFile), sidecar)
}

// Latest reads latest.json.
func (b *FileBackend) Latest(ctx context.Context) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, fmt.Errorf("context cancelled: %w", err)
	}
	data, err := os.ReadFile(filepath.Join(b.dir, latestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, ErrNoSnapshot
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("read latest pointer: %w", err)
	}
	return unmarshalMetadata(data)
}

// ReadBlob reads the binary file named in meta.
func (b *FileBackend) ReadBlob(ctx context.Context, meta Metadata) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if meta.BinaryFile != filepath.Base(meta.BinaryFile) {
		return nil, fmt.Errorf("%w: binary_file %q is not a plain file name", ErrCorruptSnapshot, meta.BinaryFile)
	}
	data, err := os.ReadFile(filepath.Join(b.dir, meta.BinaryFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s is missing", ErrCorruptSnapshot, meta.BinaryFile)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", meta.BinaryFile, err)
	}
	return data, nil
}

// List returns every readable sidecar, newest modification time first.
// Unreadable sidecars are logged and skipped.
func (b *FileBackend) List(ctx context.Context) ([]Metadata, error) {
	files, err := b.sidecars(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Metadata, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f.path)
		if err == nil {
			var meta Metadata
			meta, err = unmarshalMetadata(data)
			if err == nil {
				out = append(out, meta)
				continue
			}
		}
		b.logger.Warn("skipping unreadable sidecar", "path", f.path, "error", err)
	}
	return out, nil
}

// Cleanup keeps the keep newest snapshots by sidecar modification time
// (name as tie-break) and deletes both files of every older one.
func (b *FileBackend) Cleanup(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeep, keep)
	}

	unlock, err := b.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	files, err := b.sidecars(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) <= keep {
		return nil, nil
	}

	var removed []string
	for _, f := range files[keep:] {
		bin := filepath.Join(b.dir, binaryFileName(f.version))
		if err := os.Remove(bin); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", bin, err)
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", f.path, err)
		}
		removed = append(removed, f.version)
	}
	if keep == 0 {
		latest := filepath.Join(b.dir, latestFile)
		if err := os.Remove(latest); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", latest, err)
		}
	}
	return removed, nil
}

type sidecarFile struct {
	path    string
	version string
	modTime time.Time
}

// sidecars lists snapshot_*.json files, newest first.
func (b *FileBackend) sidecars(ctx context.Context) ([]sidecarFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage directory: %w", err)
	}

	var files []sidecarFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, sidecarPrefix) || !strings.HasSuffix(name, sidecarSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // removed concurrently
		}
		files = append(files, sidecarFile{
			path:    filepath.Join(b.dir, name),
			version: strings.TrimSuffix(strings.TrimPrefix(name, sidecarPrefix), sidecarSuffix),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.After(files[j].modTime)
		}
		return files[i].version > files[j].version
	})
	return files, nil
}

func (b *FileBackend) sidecarPath(version string) string {
	return filepath.Join(b.dir, sidecarPrefix+version+sidecarSuffix)
}

// writeAtomic writes data to a temp file in the target directory, syncs it,
// renames it over path and syncs the directory so the rename is durable.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	committed = true
	return syncDir(filepath.Dir(path))
}
