package ldb

import (
	"testing"
)

type prepareFunc func(t *testing.T, testName string) (db *LevelDB, teardownFunc func())

// prepareFuncs runs every test against both the durable and the in-memory
// flavors of the database.
var prepareFuncs = map[string]prepareFunc{
	"disk":   prepareDatabaseForTest,
	"memory": prepareMemDatabaseForTest,
}

func prepareDatabaseForTest(t *testing.T, testName string) (ldb *LevelDB, teardownFunc func()) {
	path := t.TempDir()
	ldb, err := NewLevelDB(path, 8)
	if err != nil {
		t.Fatalf("%s: NewLevelDB unexpectedly "+
			"failed: %s", testName, err)
	}
	teardownFunc = func() {
		err = ldb.Close()
		if err != nil {
			t.Fatalf("%s: Close unexpectedly "+
				"failed: %s", testName, err)
		}
	}
	return ldb, teardownFunc
}

func prepareMemDatabaseForTest(t *testing.T, testName string) (ldb *LevelDB, teardownFunc func()) {
	ldb, err := NewMemLevelDB()
	if err != nil {
		t.Fatalf("%s: NewMemLevelDB unexpectedly "+
			"failed: %s", testName, err)
	}
	if !ldb.InMemory() {
		t.Fatalf("%s: memory database reports itself as durable", testName)
	}
	return ldb, func() {
		err := ldb.Close()
		if err != nil {
			t.Fatalf("%s: Close unexpectedly "+
				"failed: %s", testName, err)
		}
	}
}

func forEachDatabase(t *testing.T, testName string, testFunc func(t *testing.T, ldb *LevelDB, testName string)) {
	for name, prepare := range prepareFuncs {
		func() {
			ldb, teardownFunc := prepare(t, testName)
			defer teardownFunc()
			testFunc(t, ldb, testName+" ("+name+")")
		}()
	}
}
