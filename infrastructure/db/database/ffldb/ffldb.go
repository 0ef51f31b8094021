package ffldb

import (
	"github.com/blockkernel/blockkernel/infrastructure/db/database"
	"github.com/blockkernel/blockkernel/infrastructure/db/database/ffldb/ff"
	"github.com/blockkernel/blockkernel/infrastructure/db/database/ldb"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

var (
	// flatFilesBucket maps each flat-file store to the write position
	// recorded at the last commit. On open, stores are truncated back to
	// it.
	flatFilesBucket = database.MakeBucket([]byte("flat-files"))
)

// ffldb is a database utilizing LevelDB for key-value data and
// flat-files for raw data storage.
type ffldb struct {
	flatFileDB *ff.FlatFileDB
	levelDB    *ldb.LevelDB
}

// Open opens a database that keeps its flat files in flatFilesPath and its
// key-value data in the LevelDB at ldbPath.
func Open(flatFilesPath string, ldbPath string, cacheSizeMiB int) (database.StoreDatabase, error) {
	levelDB, err := ldb.NewLevelDB(ldbPath, cacheSizeMiB)
	if err != nil {
		return nil, err
	}
	return open(ff.NewFlatFileDB(flatFilesPath), levelDB)
}

// OpenInMemory opens a database that never touches the disk.
func OpenInMemory() (database.StoreDatabase, error) {
	levelDB, err := ldb.NewMemLevelDB()
	if err != nil {
		return nil, err
	}
	return open(ff.NewMemFlatFileDB(), levelDB)
}

func open(flatFileDB *ff.FlatFileDB, levelDB *ldb.LevelDB) (*ffldb, error) {
	db := &ffldb{
		flatFileDB: flatFileDB,
		levelDB:    levelDB,
	}
	err := db.initialize()
	if err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			log.Warnf("Failed to close database after a failed open: %s", closeErr)
		}
		return nil, err
	}
	return db, nil
}

// Close closes the database.
// This method is part of the Database interface.
func (db *ffldb) Close() error {
	err := db.flatFileDB.Close()
	if err != nil {
		ldbCloseErr := db.levelDB.Close()
		if ldbCloseErr != nil {
			return errors.Wrapf(err, "err occurred during leveldb close: %s", ldbCloseErr)
		}
		return err
	}
	return db.levelDB.Close()
}

// Put sets the value for the given key. It overwrites
// any previous value for that key.
// This method is part of the DataAccessor interface.
func (db *ffldb) Put(key *database.Key, value []byte) error {
	return db.levelDB.Put(key, value)
}

// Get gets the value for the given key. It returns
// ErrNotFound if the given key does not exist.
// This method is part of the DataAccessor interface.
func (db *ffldb) Get(key *database.Key) ([]byte, error) {
	return db.levelDB.Get(key)
}

// Has returns true if the database does contains the
// given key.
// This method is part of the DataAccessor interface.
func (db *ffldb) Has(key *database.Key) (bool, error) {
	return db.levelDB.Has(key)
}

// Delete deletes the value for the given key. Will not
// return an error if the key doesn't exist.
// This method is part of the DataAccessor interface.
func (db *ffldb) Delete(key *database.Key) error {
	return db.levelDB.Delete(key)
}

// Cursor begins a new cursor over the given bucket.
// This method is part of the DataAccessor interface.
func (db *ffldb) Cursor(bucket *database.Bucket) (database.Cursor, error) {
	return db.levelDB.Cursor(bucket)
}

// AppendToStore appends the given data to the flat file store defined by
// storeName. A write that fails part way is rolled back by the store.
// This method is part of the StoreDatabase interface.
func (db *ffldb) AppendToStore(storeName string, data []byte) ([]byte, error) {
	return db.flatFileDB.Write(storeName, data)
}

// RetrieveFromStore retrieves data from the store defined by storeName
// using the given serialized location handle.
// This method is part of the StoreDatabase interface.
func (db *ffldb) RetrieveFromStore(storeName string, location []byte) ([]byte, error) {
	return db.flatFileDB.Read(storeName, location)
}

// ScanStore walks every intact entry of the given store.
// This method is part of the StoreDatabase interface.
func (db *ffldb) ScanStore(storeName string, fn func(location []byte, data []byte) (bool, error)) error {
	return db.flatFileDB.Scan(storeName, fn)
}

// ResetStore drops all data of the given store.
// This method is part of the StoreDatabase interface.
func (db *ffldb) ResetStore(storeName string) error {
	return db.flatFileDB.Reset(storeName)
}

// Begin begins a new ffldb transaction. Committing it first syncs the flat
// files and records their positions in the same LevelDB batch, so the
// key-value data never references store entries that could be lost.
// This method is part of the Database interface.
func (db *ffldb) Begin() (database.Transaction, error) {
	return db.levelDB.BeginWithHook(db.recordFlatFileLocations)
}

// Flush commits the current flat file positions on their own.
// This method is part of the StoreDatabase interface.
func (db *ffldb) Flush() error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (db *ffldb) recordFlatFileLocations(batch *leveldb.Batch) error {
	err := db.flatFileDB.Sync()
	if err != nil {
		return err
	}
	for storeName, location := range db.flatFileDB.CurrentLocations() {
		batch.Put(flatFilesBucket.Key([]byte(storeName)).Bytes(), location)
	}
	return nil
}
