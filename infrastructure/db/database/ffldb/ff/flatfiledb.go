package ff

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// FlatFileDB is a set of named append-only stores sharing a directory. Each
// store lays its entries out in files named <store>NNNNN.dat.
type FlatFileDB struct {
	fs          fileSystem
	basePath    string
	maxFileSize uint32

	mtx            sync.Mutex
	flatFileStores map[string]*flatFileStore
}

// NewFlatFileDB opens a new flat file DB rooted at basePath.
func NewFlatFileDB(basePath string) *FlatFileDB {
	return newFlatFileDB(osFileSystem{}, basePath, defaultMaxFileSize)
}

// NewMemFlatFileDB returns a flat file DB whose files live only in memory.
func NewMemFlatFileDB() *FlatFileDB {
	return newFlatFileDB(newMemFileSystem(), "", defaultMaxFileSize)
}

func newFlatFileDB(fs fileSystem, basePath string, maxFileSize uint32) *FlatFileDB {
	return &FlatFileDB{
		fs:             fs,
		basePath:       basePath,
		maxFileSize:    maxFileSize,
		flatFileStores: make(map[string]*flatFileStore),
	}
}

// Close closes the flat file database
func (ffdb *FlatFileDB) Close() error {
	ffdb.mtx.Lock()
	defer ffdb.mtx.Unlock()
	for _, store := range ffdb.flatFileStores {
		err := store.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Write appends data to the given store and returns its serialized location.
func (ffdb *FlatFileDB) Write(storeName string, data []byte) ([]byte, error) {
	store, err := ffdb.store(storeName)
	if err != nil {
		return nil, err
	}
	location, err := store.write(data)
	if err != nil {
		return nil, err
	}
	return serializeLocation(location), nil
}

// Read returns the data stored at the given serialized location. It returns
// database.ErrNotFound when the location lies past everything written.
func (ffdb *FlatFileDB) Read(storeName string, serializedLocation []byte) ([]byte, error) {
	store, err := ffdb.store(storeName)
	if err != nil {
		return nil, err
	}
	location, err := deserializeLocation(serializedLocation)
	if err != nil {
		return nil, err
	}
	return store.read(location)
}

// CurrentLocation returns the serialized write position of the given store.
func (ffdb *FlatFileDB) CurrentLocation(storeName string) ([]byte, error) {
	store, err := ffdb.store(storeName)
	if err != nil {
		return nil, err
	}
	return serializeLocation(store.currentLocation()), nil
}

// CurrentLocations returns the serialized write position of every store
// opened so far, keyed by store name.
func (ffdb *FlatFileDB) CurrentLocations() map[string][]byte {
	ffdb.mtx.Lock()
	defer ffdb.mtx.Unlock()
	locations := make(map[string][]byte, len(ffdb.flatFileStores))
	for name, store := range ffdb.flatFileStores {
		locations[name] = serializeLocation(store.currentLocation())
	}
	return locations
}

// Rollback truncates the given store back to the serialized location.
func (ffdb *FlatFileDB) Rollback(storeName string, serializedLocation []byte) error {
	store, err := ffdb.store(storeName)
	if err != nil {
		return err
	}
	location, err := deserializeLocation(serializedLocation)
	if err != nil {
		return err
	}
	return store.rollback(location)
}

// Reset drops every entry of the given store.
func (ffdb *FlatFileDB) Reset(storeName string) error {
	store, err := ffdb.store(storeName)
	if err != nil {
		return err
	}
	return store.rollback(&flatFileLocation{})
}

// Sync flushes the write files of all opened stores. Stores are synced in
// name order so failures are reproducible.
func (ffdb *FlatFileDB) Sync() error {
	ffdb.mtx.Lock()
	names := make([]string, 0, len(ffdb.flatFileStores))
	for name := range ffdb.flatFileStores {
		names = append(names, name)
	}
	ffdb.mtx.Unlock()
	sort.Strings(names)

	for _, name := range names {
		store, err := ffdb.store(name)
		if err != nil {
			return err
		}
		err = store.sync()
		if err != nil {
			return err
		}
	}
	return nil
}

// Scan calls fn with the serialized location and data of every intact entry
// of the given store, in write order. fn returns false to stop.
func (ffdb *FlatFileDB) Scan(storeName string, fn func(location []byte, data []byte) (bool, error)) error {
	store, err := ffdb.store(storeName)
	if err != nil {
		return err
	}
	return store.scan(func(location *flatFileLocation, data []byte) (bool, error) {
		return fn(serializeLocation(location), data)
	})
}

func (ffdb *FlatFileDB) store(storeName string) (*flatFileStore, error) {
	if storeName == "" {
		return nil, errors.New("store name must not be empty")
	}
	ffdb.mtx.Lock()
	defer ffdb.mtx.Unlock()
	store, ok := ffdb.flatFileStores[storeName]
	if !ok {
		var err error
		store, err = openFlatFileStore(ffdb.fs, ffdb.basePath, storeName, ffdb.maxFileSize)
		if err != nil {
			return nil, err
		}
		ffdb.flatFileStores[storeName] = store
	}
	return store, nil
}
