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
	"log/slog"
	"sort"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/conceptgraph/services/knowledge/storage/badger"
)

// Key layout:
//
//	snap/<version>/bin   binary snapshot
//	snap/<version>/meta  sidecar JSON
//	latest               copy of the newest sidecar
const (
	snapPrefix = "snap/"
	binSuffix  = "/bin"
	metaSuffix = "/meta"
	latestKey  = "latest"
)

// BadgerBackend stores snapshots in BadgerDB.
//
// Blob, sidecar and pointer are committed in one transaction. The storage
// lock is held from open to Close.
//
// Thread Safety: Safe for concurrent use.
type BadgerBackend struct {
	db     *badger.DB
	lock   *storageLock
	logger *slog.Logger
}

// OpenBadgerBackend takes the storage lock on dir and opens the database
// inside it.
//
// Outputs:
//
//	*BadgerBackend - The backend. Caller must call Close.
//	error - *StorageLockError if another process has the directory open.
func OpenBadgerBackend(dir string, logger *slog.Logger) (*BadgerBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := badger.DefaultConfig(dir)
	cfg.Logger = logger

	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	lock, err := acquireStorageLock(dir)
	if err != nil {
		return nil, err
	}
	db, err := badger.Open(cfg)
	if err != nil {
		lock.release()
		return nil, err
	}
	return &BadgerBackend{db: db, lock: lock, logger: logger}, nil
}

// NewBadgerBackend wraps an already open database. No storage lock is
// taken.
func NewBadgerBackend(db *badger.DB, logger *slog.Logger) *BadgerBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerBackend{db: db, logger: logger}
}

// Location returns the database directory, or "memory".
func (b *BadgerBackend) Location() string {
	if b.db.InMemory() {
		return "memory"
	}
	return b.db.Path()
}

// Close closes the database and releases the storage lock.
func (b *BadgerBackend) Close() error {
	err := b.db.Close()
	if lockErr := b.lock.release(); err == nil {
		err = lockErr
	}
	return err
}

func (b *BadgerBackend) Write(ctx context.Context, meta Metadata, blob []byte) error {
	sidecar, err := marshalMetadata(meta)
	if err != nil {
		return err
	}
	return b.db.Update(ctx, func(txn *badgerdb.Txn) error {
		if err := txn.Set(binKey(meta.Version), blob); err != nil {
			return fmt.Errorf("store snapshot %s: %w", meta.Version, err)
		}
		if err := txn.Set(metaKey(meta.Version), sidecar); err != nil {
			return fmt.Errorf("store sidecar %s: %w", meta.Version, err)
		}
		return txn.Set([]byte(latestKey), sidecar)
	})
}

func (b *BadgerBackend) Latest(ctx context.Context) (Metadata, error) {
	data, err := b.get(ctx, []byte(latestKey))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return Metadata{}, ErrNoSnapshot
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("read latest pointer: %w", err)
	}
	return unmarshalMetadata(data)
}

func (b *BadgerBackend) ReadBlob(ctx context.Context, meta Metadata) ([]byte, error) {
	data, err := b.get(ctx, binKey(meta.Version))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: snapshot %s is missing", ErrCorruptSnapshot, meta.Version)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", meta.Version, err)
	}
	return data, nil
}

// List returns sidecars by timestamp descending, version as tie-break.
func (b *BadgerBackend) List(ctx context.Context) ([]Metadata, error) {
	var out []Metadata
	err := b.db.View(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(snapPrefix)
		// Blobs share the prefix; only sidecar values are read.
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, metaSuffix) {
				continue
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", key, err)
			}
			meta, err := unmarshalMetadata(data)
			if err != nil {
				b.logger.Warn("skipping unreadable sidecar", "key", key, "error", err)
				continue
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}

func (b *BadgerBackend) Cleanup(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeep, keep)
	}
	metas, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(metas) <= keep {
		return nil, nil
	}

	var removed []string
	err = b.db.Update(ctx, func(txn *badgerdb.Txn) error {
		for _, meta := range metas[keep:] {
			if err := txn.Delete(binKey(meta.Version)); err != nil {
				return err
			}
			if err := txn.Delete(metaKey(meta.Version)); err != nil {
				return err
			}
			removed = append(removed, meta.Version)
		}
		if keep == 0 {
			return txn.Delete([]byte(latestKey))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete old snapshots: %w", err)
	}
	return removed, nil
}

func (b *BadgerBackend) get(ctx context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func binKey(version string) []byte {
	return []byte(snapPrefix + version + binSuffix)
}

func metaKey(version string) []byte {
	return []byte(snapPrefix + version + metaSuffix)
}
