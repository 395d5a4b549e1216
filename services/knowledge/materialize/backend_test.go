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
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/conceptgraph/services/knowledge/storage/badger"
)

// =============================================================================
// Test Fixtures
// =============================================================================

var backendFactories = map[string]func(t *testing.T) Backend{
	"file": func(t *testing.T) Backend {
		b, err := NewFileBackend(t.TempDir(), nil)
		require.NoError(t, err)
		return b
	},
	"badger": func(t *testing.T) Backend {
		db, err := badger.Open(badger.InMemoryConfig())
		require.NoError(t, err)
		b := NewBadgerBackend(db, nil)
		t.Cleanup(func() { b.Close() })
		return b
	},
}

// writeTestSnapshot writes a small blob whose timestamp is base+offset.
func writeTestSnapshot(t *testing.T, b Backend, base time.Time, offset time.Duration) Metadata {
	t.Helper()
	ts := base.Add(offset)
	version := newVersion(ts)
	meta := Metadata{
		Version:       version,
		Timestamp:     ts,
		NodeCount:     1,
		BinaryFile:    binaryFileName(version),
		FormatVersion: FormatVersion,
		RefreshID:     "test",
		Mode:          ModeFull,
	}
	require.NoError(t, b.Write(context.Background(), meta, []byte("blob "+version)))
	return meta
}

func versions(metas []Metadata) []string {
	out := make([]string, len(metas))
	for i, m := range metas {
		out[i] = m.Version
	}
	return out
}

// =============================================================================
// Backend Contract
// =============================================================================

func TestBackend_Contract(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for name, newBackend := range backendFactories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("empty", func(t *testing.T) {
				b := newBackend(t)
				_, err := b.Latest(ctx)
				assert.ErrorIs(t, err, ErrNoSnapshot)

				list, err := b.List(ctx)
				require.NoError(t, err)
				assert.Empty(t, list)

				removed, err := b.Cleanup(ctx, 3)
				require.NoError(t, err)
				assert.Empty(t, removed)
			})

			t.Run("write and read", func(t *testing.T) {
				b := newBackend(t)
				first := writeTestSnapshot(t, b, base, 0)
				second := writeTestSnapshot(t, b, base, time.Minute)

				latest, err := b.Latest(ctx)
				require.NoError(t, err)
				assert.Equal(t, second.Version, latest.Version)
				assert.True(t, second.Timestamp.Equal(latest.Timestamp))
				assert.Equal(t, second.BinaryFile, latest.BinaryFile)
				assert.Equal(t, ModeFull, latest.Mode)

				blob, err := b.ReadBlob(ctx, first)
				require.NoError(t, err)
				assert.Equal(t, "blob "+first.Version, string(blob))

				list, err := b.List(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{second.Version, first.Version}, versions(list))
			})

			t.Run("missing blob is corrupt", func(t *testing.T) {
				b := newBackend(t)
				ghost := Metadata{Version: "ghost", BinaryFile: binaryFileName("ghost")}
				_, err := b.ReadBlob(ctx, ghost)
				assert.ErrorIs(t, err, ErrCorruptSnapshot)
			})

			t.Run("cleanup keeps newest", func(t *testing.T) {
				b := newBackend(t)
				var metas []Metadata
				for i := 0; i < 4; i++ {
					metas = append(metas, writeTestSnapshot(t, b, base, time.Duration(i)*time.Minute))
				}

				removed, err := b.Cleanup(ctx, 2)
				require.NoError(t, err)
				assert.ElementsMatch(t, []string{metas[0].Version, metas[1].Version}, removed)

				list, err := b.List(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{metas[3].Version, metas[2].Version}, versions(list))

				_, err = b.ReadBlob(ctx, metas[0])
				assert.ErrorIs(t, err, ErrCorruptSnapshot, "blob removed with its sidecar")

				latest, err := b.Latest(ctx)
				require.NoError(t, err)
				assert.Equal(t, metas[3].Version, latest.Version)
			})

			t.Run("cleanup zero drops pointer", func(t *testing.T) {
				b := newBackend(t)
				writeTestSnapshot(t, b, base, 0)

				removed, err := b.Cleanup(ctx, 0)
				require.NoError(t, err)
				assert.Len(t, removed, 1)

				_, err = b.Latest(ctx)
				assert.ErrorIs(t, err, ErrNoSnapshot)
			})

			t.Run("negative keep", func(t *testing.T) {
				b := newBackend(t)
				_, err := b.Cleanup(ctx, -1)
				assert.ErrorIs(t, err, ErrInvalidKeep)
			})

			t.Run("cancelled context", func(t *testing.T) {
				b := newBackend(t)
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				_, err := b.Latest(cctx)
				assert.ErrorIs(t, err, context.Canceled)
			})
		})
	}
}

// =============================================================================
// File Backend Tests
// =============================================================================

func TestFileBackend_Layout(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir, nil)
	require.NoError(t, err)

	meta := writeTestSnapshot(t, b, time.Now(), 0)

	for _, name := range []string{meta.BinaryFile, "snapshot_" + meta.Version + ".json", "latest.json"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "no temp files left behind")
	}

	sidecar, err := os.ReadFile(filepath.Join(dir, "snapshot_"+meta.Version+".json"))
	require.NoError(t, err)
	latest, err := os.ReadFile(filepath.Join(dir, "latest.json"))
	require.NoError(t, err)
	assert.Equal(t, sidecar, latest)
	for _, key := range []string{"version", "timestamp", "node_count", "edge_count", "binary_file", "format_version", "refresh_id", "mode"} {
		assert.Contains(t, string(sidecar), `"`+key+`"`)
	}
}

func TestFileBackend_CorruptPointer(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "latest.json"), []byte("{not json"), 0640))

	_, err = b.Latest(context.Background())
	assert.ErrorIs(t, err, ErrCorruptSnapshot)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "latest.json"), []byte(`{"version":"v","binary_file":"../etc/passwd"}`), 0640))
	meta, err := b.Latest(context.Background())
	require.NoError(t, err)
	_, err = b.ReadBlob(context.Background(), meta)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestFileBackend_RetentionByModTime(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir, nil)
	require.NoError(t, err)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a := writeTestSnapshot(t, b, base, 0)
	bb := writeTestSnapshot(t, b, base, time.Minute)
	c := writeTestSnapshot(t, b, base, 2*time.Minute)

	// The oldest version name gets the newest modification time.
	touch := func(m Metadata, mtime time.Time) {
		require.NoError(t, os.Chtimes(b.sidecarPath(m.Version), mtime, mtime))
	}
	now := time.Now()
	touch(a, now.Add(3*time.Hour))
	touch(bb, now.Add(1*time.Hour))
	touch(c, now.Add(2*time.Hour))

	removed, err := b.Cleanup(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{c.Version, bb.Version}, removed)
	assert.FileExists(t, filepath.Join(dir, a.BinaryFile))
	assert.NoFileExists(t, filepath.Join(dir, bb.BinaryFile))
	assert.NoFileExists(t, filepath.Join(dir, c.BinaryFile))
}

func TestFileBackend_RetentionTieBreakByName(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir, nil)
	require.NoError(t, err)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var metas []Metadata
	same := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		m := writeTestSnapshot(t, b, base, time.Duration(i)*time.Second)
		require.NoError(t, os.Chtimes(b.sidecarPath(m.Version), same, same))
		metas = append(metas, m)
	}

	removed, err := b.Cleanup(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{metas[0].Version}, removed)
}

func TestFileBackend_SkipsUnreadableSidecar(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir, nil)
	require.NoError(t, err)

	good := writeTestSnapshot(t, b, time.Now(), 0)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot_broken.json"), []byte("nope"), 0640))

	list, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{good.Version}, versions(list))
}

// =============================================================================
// Storage Lock Tests
// =============================================================================

func TestStorageLock_Exclusive(t *testing.T) {
	dir := t.TempDir()
	held, err := acquireStorageLock(dir)
	require.NoError(t, err)

	_, err = acquireStorageLock(dir)
	require.ErrorIs(t, err, ErrStorageLocked)
	var lockErr *StorageLockError
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, filepath.Join(dir, lockFileName), lockErr.Path)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.Getpid(), lockErr.HolderPID)
	}

	require.NoError(t, held.release())
	again, err := acquireStorageLock(dir)
	require.NoError(t, err)
	assert.NoError(t, again.release())
	assert.NoError(t, again.release(), "release is idempotent")
}

func TestFileBackend_WriteFailsWhileLocked(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir, nil)
	require.NoError(t, err)

	held, err := acquireStorageLock(dir)
	require.NoError(t, err)
	defer held.release()

	meta := Metadata{Version: "v", BinaryFile: binaryFileName("v")}
	err = b.Write(context.Background(), meta, []byte("x"))
	assert.ErrorIs(t, err, ErrStorageLocked)
	assert.NoFileExists(t, filepath.Join(dir, meta.BinaryFile))

	_, err = b.Cleanup(context.Background(), 1)
	assert.ErrorIs(t, err, ErrStorageLocked)
}

func TestFileBackend_Hold(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	release, err := b.Hold()
	require.NoError(t, err)

	_, err = acquireStorageLock(dir)
	assert.ErrorIs(t, err, ErrStorageLocked, "other holders are excluded")
	_, err = b.Hold()
	assert.ErrorIs(t, err, ErrStorageLocked, "a second hold on the same backend fails")

	meta := writeTestSnapshot(t, b, time.Now(), 0)
	removed, err := b.Cleanup(ctx, 1)
	require.NoError(t, err, "write and cleanup reuse the held lock")
	assert.Empty(t, removed)

	_, err = acquireStorageLock(dir)
	assert.ErrorIs(t, err, ErrStorageLocked, "write does not release a held lock")

	require.NoError(t, release())
	assert.NoError(t, release(), "release is idempotent")

	again, err := acquireStorageLock(dir)
	require.NoError(t, err)
	require.NoError(t, again.release())

	latest, err := b.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta.Version, latest.Version)
}

func TestFileBackend_CloseReleasesHold(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir, nil)
	require.NoError(t, err)

	_, err = b.Hold()
	require.NoError(t, err)
	require.NoError(t, b.Close())

	lock, err := acquireStorageLock(dir)
	require.NoError(t, err)
	assert.NoError(t, lock.release())
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.json")

	require.NoError(t, writeAtomic(path, []byte("one")))
	require.NoError(t, writeAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")

	assert.NoError(t, syncDir(dir))
	if runtime.GOOS != "windows" {
		assert.Error(t, syncDir(filepath.Join(dir, "missing")))
	}
}

func TestBadgerBackend_ListReadsOnlySidecars(t *testing.T) {
	b := backendFactories["badger"](t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var want []string
	for i := range 4 {
		meta := Metadata{
			Version:       newVersion(base.Add(time.Duration(i) * time.Minute)),
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			FormatVersion: FormatVersion,
			Mode:          ModeFull,
		}
		meta.BinaryFile = binaryFileName(meta.Version)
		require.NoError(t, b.Write(context.Background(), meta, make([]byte, 1<<20)))
		want = append([]string{meta.Version}, want...)
	}

	list, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, versions(list))
}

func TestBadgerBackend_ExclusiveOpen(t *testing.T) {
	dir := t.TempDir()
	first, err := OpenBadgerBackend(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, first.Location())

	_, err = OpenBadgerBackend(dir, nil)
	assert.ErrorIs(t, err, ErrStorageLocked)

	require.NoError(t, first.Close())
	second, err := OpenBadgerBackend(dir, nil)
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}
