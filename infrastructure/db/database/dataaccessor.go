package database

// DataAccessor defines the common interface by which data gets
// accessed in a generic database.
type DataAccessor interface {
	// Put sets the value for the given key. It overwrites
	// any previous value for that key.
	Put(key *Key, value []byte) error

	// Get gets the value for the given key. It returns
	// ErrNotFound if the given key does not exist.
	Get(key *Key) ([]byte, error)

	// Has returns true if the database does contains the
	// given key.
	Has(key *Key) (bool, error)

	// Delete deletes the value for the given key. Will not
	// return an error if the key doesn't exist.
	Delete(key *Key) error

	// Cursor begins a new cursor over the given bucket.
	Cursor(bucket *Bucket) (Cursor, error)
}

// Database defines the interface of a database that can begin
// transactions and close itself.
type Database interface {
	DataAccessor

	// Begin begins a new database transaction.
	Begin() (Transaction, error)

	// Close closes the database.
	Close() error
}

// Transaction defines the interface of a generic database
// transaction. Reads observe the state of the database at the time the
// transaction began; writes become visible atomically on Commit.
//
// Note: Transactions provide data consistency over the state of
// the database as it was when the transaction started. There is
// NO guarantee that if one puts data into the transaction then
// it will be available to get within the same transaction.
type Transaction interface {
	DataAccessor

	// Rollback rolls back whatever changes were made to the
	// database within this transaction.
	Rollback() error

	// Commit commits whatever changes were made to the database
	// within this transaction.
	Commit() error

	// RollbackUnlessClosed rolls back changes that were made to
	// the database within the transaction, unless the transaction
	// had already been closed using either Rollback or Commit.
	RollbackUnlessClosed() error
}

// Cursor iterates over database entries given some bucket.
type Cursor interface {
	// Next moves the iterator to the next key/value pair. It returns whether the
	// iterator is exhausted. Panics if the cursor is closed.
	Next() bool

	// First moves the iterator to the first key/value pair. It returns false if
	// such a pair does not exist. Panics if the cursor is closed.
	First() bool

	// Seek moves the iterator to the first key/value pair whose key is greater
	// than or equal to the given key. It returns ErrNotFound if such pair does not
	// exist.
	Seek(key *Key) error

	// Key returns the key of the current key/value pair, or ErrNotFound if done.
	// The returned key is split into the bucket the cursor was opened with and
	// the remaining suffix.
	Key() (*Key, error)

	// Value returns the value of the current key/value pair, or ErrNotFound if done.
	// The caller should not modify the contents of the returned slice, and its
	// contents may change on the next call to Next.
	Value() ([]byte, error)

	// Close releases associated resources.
	Close() error
}

// StoreDatabase is a Database that additionally keeps raw data in named
// append-only stores. Store locations are opaque handles returned by
// AppendToStore.
type StoreDatabase interface {
	Database

	// AppendToStore appends data to the given store and returns a
	// serialized location handle for later retrieval.
	AppendToStore(storeName string, data []byte) ([]byte, error)

	// RetrieveFromStore returns the data at location. It returns
	// ErrNotFound if the location was never written.
	RetrieveFromStore(storeName string, location []byte) ([]byte, error)

	// ScanStore calls fn for every entry of the store in write order
	// until fn returns false.
	ScanStore(storeName string, fn func(location []byte, data []byte) (bool, error)) error

	// ResetStore discards all the data of the given store.
	ResetStore(storeName string) error

	// Flush syncs the stores and records their positions so a later open
	// can discard anything written after this point.
	Flush() error
}
