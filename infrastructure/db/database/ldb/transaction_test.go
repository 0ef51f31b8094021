package ldb

import (
	"bytes"
	"testing"

	"github.com/blockkernel/blockkernel/infrastructure/db/database"
	"github.com/syndtr/goleveldb/leveldb"
)

func TestTransactionCommitAndRollback(t *testing.T) {
	forEachDatabase(t, "TestTransactionCommitAndRollback", func(t *testing.T, ldb *LevelDB, testName string) {
		key := database.MakeBucket([]byte("b")).Key([]byte("k"))

		dbTx, err := ldb.Begin()
		if err != nil {
			t.Fatalf("%s: Begin: %s", testName, err)
		}
		err = dbTx.Put(key, []byte("v"))
		if err != nil {
			t.Fatalf("%s: Put: %s", testName, err)
		}
		// Writes are not visible before commit, not even inside the transaction.
		if _, err := dbTx.Get(key); !database.IsNotFoundError(err) {
			t.Fatalf("%s: uncommitted value is visible: %v", testName, err)
		}
		if err := dbTx.Rollback(); err != nil {
			t.Fatalf("%s: Rollback: %s", testName, err)
		}
		if err := dbTx.RollbackUnlessClosed(); err != nil {
			t.Fatalf("%s: RollbackUnlessClosed: %s", testName, err)
		}
		if err := dbTx.Commit(); err == nil {
			t.Fatalf("%s: Commit after Rollback unexpectedly succeeded", testName)
		}
		if exists, _ := ldb.Has(key); exists {
			t.Fatalf("%s: rolled back value exists", testName)
		}

		hookCalled := false
		hookKey := database.MakeBucket([]byte("b")).Key([]byte("hook"))
		dbTx2, err := ldb.BeginWithHook(func(batch *leveldb.Batch) error {
			hookCalled = true
			batch.Put(hookKey.Bytes(), []byte("h"))
			return nil
		})
		if err != nil {
			t.Fatalf("%s: BeginWithHook: %s", testName, err)
		}
		_ = dbTx2.Put(key, []byte("v"))
		if err := dbTx2.Commit(); err != nil {
			t.Fatalf("%s: Commit: %s", testName, err)
		}
		if !hookCalled {
			t.Fatalf("%s: commit hook was not called", testName)
		}
		for k, want := range map[*database.Key][]byte{key: []byte("v"), hookKey: []byte("h")} {
			got, err := ldb.Get(k)
			if err != nil {
				t.Fatalf("%s: Get %s: %s", testName, k, err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("%s: Get %s: want %s, got %s", testName, k, want, got)
			}
		}
	})
}

func TestDeleteAndNotFound(t *testing.T) {
	forEachDatabase(t, "TestDeleteAndNotFound", func(t *testing.T, ldb *LevelDB, testName string) {
		key := database.MakeBucket().Key([]byte("gone"))
		if err := ldb.Delete(key); err != nil {
			t.Fatalf("%s: deleting a missing key failed: %s", testName, err)
		}
		if _, err := ldb.Get(key); !database.IsNotFoundError(err) {
			t.Fatalf("%s: Get of a missing key returned %v", testName, err)
		}
	})
}
