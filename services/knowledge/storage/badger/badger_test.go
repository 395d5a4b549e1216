// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readKey(t *testing.T, db *DB, key string) string {
	t.Helper()
	var out string
	err := db.View(context.Background(), func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		out = string(val)
		return err
	})
	require.NoError(t, err)
	return out
}

func TestOpen_InMemory(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.InMemory())
	assert.Empty(t, db.Path())

	err = db.Update(context.Background(), func(txn *badger.Txn) error {
		return txn.Set([]byte("latest"), []byte("v1"))
	})
	require.NoError(t, err)
	assert.Equal(t, "v1", readKey(t, db, "latest"))
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0
	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Update(context.Background(), func(txn *badger.Txn) error {
		return txn.Set([]byte("snap/v1/meta"), []byte("{}"))
	}))
	require.NoError(t, db.Close())

	db, err = Open(cfg)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, dir, db.Path())
	assert.Equal(t, "{}", readKey(t, db, "snap/v1/meta"))
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_RejectsBadDiscardRatio(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.GCDiscardRatio = 1.5
	_, err := Open(cfg)
	assert.Error(t, err)
}

func TestDB_GCRunnerStops(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.GCInterval = 10 * time.Millisecond
	db, err := Open(cfg)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, db.Close())
}

func TestDB_UpdateRollsBackOnError(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	err = db.Update(context.Background(), func(txn *badger.Txn) error {
		if err := txn.Set([]byte("k"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = db.View(context.Background(), func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("k"))
		return err
	})
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}

func TestDB_CancelledContext(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err = db.View(ctx, func(*badger.Txn) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
