package ffldb

// initialize truncates every flat-file store back to the position recorded
// at the last commit. Entries written after it were never referenced by a
// committed key and are dropped.
func (db *ffldb) initialize() error {
	flatFiles, err := db.flatFiles()
	if err != nil {
		return err
	}
	for storeName, currentLocation := range flatFiles {
		err := db.tryRepair(storeName, currentLocation)
		if err != nil {
			return err
		}
	}
	return nil
}

func (db *ffldb) flatFiles() (map[string][]byte, error) {
	flatFilesCursor, err := db.levelDB.Cursor(flatFilesBucket)
	if err != nil {
		return nil, err
	}
	defer func() {
		err := flatFilesCursor.Close()
		if err != nil {
			log.Warnf("cursor failed to close")
		}
	}()

	flatFiles := make(map[string][]byte)
	for flatFilesCursor.Next() {
		storeNameKey, err := flatFilesCursor.Key()
		if err != nil {
			return nil, err
		}
		currentLocation, err := flatFilesCursor.Value()
		if err != nil {
			return nil, err
		}
		flatFiles[string(storeNameKey.Suffix())] = append([]byte(nil), currentLocation...)
	}
	return flatFiles, nil
}

// tryRepair rolls the store back to currentLocation. When the store on disk
// is shorter than the recorded position, files were lost after a commit; the
// rollback is then a no-op and the missing entries surface as not-found
// reads.
func (db *ffldb) tryRepair(storeName string, currentLocation []byte) error {
	return db.flatFileDB.Rollback(storeName, currentLocation)
}
