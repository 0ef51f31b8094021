package ffldb

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/blockkernel/blockkernel/infrastructure/db/database"
	"github.com/blockkernel/blockkernel/infrastructure/db/database/ffldb/ff"
)

func TestUncommittedStoreDataIsDiscardedOnOpen(t *testing.T) {
	dir := t.TempDir()
	flatFilesPath := dir
	ldbPath := filepath.Join(dir, "index")

	db, err := Open(flatFilesPath, ldbPath, 8)
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	committedLocation, err := db.AppendToStore("blk", []byte("committed"))
	if err != nil {
		t.Fatalf("AppendToStore: %s", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin: %s", err)
	}
	key := database.MakeBucket([]byte("blocks")).Key([]byte("a"))
	if err := tx.Put(key, committedLocation); err != nil {
		t.Fatalf("Put: %s", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %s", err)
	}

	lostLocation, err := db.AppendToStore("blk", []byte("never committed"))
	if err != nil {
		t.Fatalf("AppendToStore: %s", err)
	}
	if data, err := db.RetrieveFromStore("blk", lostLocation); err != nil || string(data) != "never committed" {
		t.Fatalf("uncommitted data should be readable before reopen: %q (%v)", data, err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %s", err)
	}

	db, err = Open(flatFilesPath, ldbPath, 8)
	if err != nil {
		t.Fatalf("reopen: %s", err)
	}
	defer db.Close()

	location, err := db.Get(key)
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	data, err := db.RetrieveFromStore("blk", location)
	if err != nil || !bytes.Equal(data, []byte("committed")) {
		t.Fatalf("committed data: %q (%v)", data, err)
	}
	_, err = db.RetrieveFromStore("blk", lostLocation)
	if !database.IsNotFoundError(err) {
		t.Fatalf("expected uncommitted data to be gone, got %v", err)
	}

	// The truncated space is reused.
	reused, err := db.AppendToStore("blk", []byte("again"))
	if err != nil {
		t.Fatalf("AppendToStore: %s", err)
	}
	reusedFile, reusedOffset, _, _ := ff.ParseLocation(reused)
	lostFile, lostOffset, _, _ := ff.ParseLocation(lostLocation)
	if reusedFile != lostFile || reusedOffset != lostOffset {
		t.Fatalf("expected the next entry at %d:%d, got %d:%d",
			lostFile, lostOffset, reusedFile, reusedOffset)
	}
}

func TestInMemoryStoreAndScan(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %s", err)
	}
	defer db.Close()

	payloads := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, payload := range payloads {
		if _, err := db.AppendToStore("rev", payload); err != nil {
			t.Fatalf("AppendToStore: %s", err)
		}
	}
	if err := db.Flush(); err != nil {
		t.Fatalf("Flush: %s", err)
	}

	var scanned [][]byte
	err = db.ScanStore("rev", func(_ []byte, data []byte) (bool, error) {
		scanned = append(scanned, data)
		return true, nil
	})
	if err != nil {
		t.Fatalf("ScanStore: %s", err)
	}
	if len(scanned) != len(payloads) {
		t.Fatalf("scanned %d entries, want %d", len(scanned), len(payloads))
	}
	for i := range payloads {
		if !bytes.Equal(scanned[i], payloads[i]) {
			t.Fatalf("entry %d: got %q", i, scanned[i])
		}
	}

	if err := db.ResetStore("rev"); err != nil {
		t.Fatalf("ResetStore: %s", err)
	}
	count := 0
	err = db.ScanStore("rev", func([]byte, []byte) (bool, error) {
		count++
		return true, nil
	})
	if err != nil || count != 0 {
		t.Fatalf("store not empty after reset: %d (%v)", count, err)
	}
}
