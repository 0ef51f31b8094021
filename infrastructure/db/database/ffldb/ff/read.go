package ff

import (
	"hash/crc32"

	"github.com/blockkernel/blockkernel/infrastructure/db/database"
	"github.com/pkg/errors"
)

// read returns the payload of the entry at location after verifying its
// checksum. Empty locations and locations at or past the write cursor yield
// database.ErrNotFound; an entry that cannot be read back intact yields
// database.ErrCorruption.
//
// Entry format: <data length><data><checksum>
func (s *flatFileStore) read(location *flatFileLocation) ([]byte, error) {
	if s.isClosed {
		return nil, errors.Errorf("cannot read from a closed store %s",
			s.storeName)
	}

	if location.dataLength == 0 {
		return nil, errors.Wrapf(database.ErrNotFound, "empty location in store '%s'", s.storeName)
	}
	cursor := s.currentLocation()
	if cursor.fileNumber < location.fileNumber ||
		(cursor.fileNumber == location.fileNumber && cursor.fileOffset <= location.fileOffset) {
		return nil, errors.Wrapf(database.ErrNotFound, "location %d:%d in store '%s'",
			location.fileNumber, location.fileOffset, s.storeName)
	}
	if location.dataLength < uint32(dataLengthLength+crc32ChecksumLength) {
		return nil, errors.Wrapf(database.ErrCorruption, "location in store '%s' has invalid length %d",
			s.storeName, location.dataLength)
	}

	flatFile, err := s.flatFile(location.fileNumber)
	if err != nil {
		return nil, err
	}

	data := make([]byte, location.dataLength)
	n, err := flatFile.file.ReadAt(data, int64(location.fileOffset))
	flatFile.RUnlock()
	if err != nil || n != len(data) {
		return nil, errors.Wrapf(database.ErrCorruption, "short read in store '%s' "+
			"from file %d, offset %d: %v", s.storeName, location.fileNumber,
			location.fileOffset, err)
	}

	return decodeEntry(s.storeName, data)
}

// decodeEntry validates a whole framed entry and returns its payload.
func decodeEntry(storeName string, entry []byte) ([]byte, error) {
	n := len(entry)
	length := byteOrder.Uint32(entry[:dataLengthLength])
	if int(length) != n-dataLengthLength-crc32ChecksumLength {
		return nil, errors.Wrapf(database.ErrCorruption, "entry in store '%s' declares length %d "+
			"but spans %d bytes", storeName, length, n)
	}
	serializedChecksum := crc32ByteOrder.Uint32(entry[n-crc32ChecksumLength:])
	calculatedChecksum := crc32.Checksum(entry[:n-crc32ChecksumLength], castagnoli)
	if serializedChecksum != calculatedChecksum {
		return nil, errors.Wrapf(database.ErrCorruption, "data in store '%s' does not match "+
			"checksum - got %x, want %x", storeName, calculatedChecksum,
			serializedChecksum)
	}
	return entry[dataLengthLength : n-crc32ChecksumLength], nil
}

// flatFile returns a read-locked handle for fileNumber, reusing the write
// file or a cached handle when possible. The caller MUST RUnlock it.
func (s *flatFileStore) flatFile(fileNumber uint32) (*lockableFile, error) {
	s.writeCursor.RLock()
	if fileNumber == s.writeCursor.currentFileNumber && s.writeCursor.currentFile.file != nil {
		openFile := s.writeCursor.currentFile
		openFile.RLock()
		s.writeCursor.RUnlock()
		return openFile, nil
	}
	s.writeCursor.RUnlock()

	s.openFilesMutex.RLock()
	if openFile, ok := s.openFiles[fileNumber]; ok {
		s.lruMutex.Lock()
		s.openFilesLRU.MoveToFront(s.fileNumberToLRUElement[fileNumber])
		s.lruMutex.Unlock()

		openFile.RLock()
		s.openFilesMutex.RUnlock()
		return openFile, nil
	}
	s.openFilesMutex.RUnlock()

	// Re-check under the write lock; another reader may have opened it.
	s.openFilesMutex.Lock()
	if openFile, ok := s.openFiles[fileNumber]; ok {
		openFile.RLock()
		s.openFilesMutex.Unlock()
		return openFile, nil
	}
	openFile, err := s.openFile(fileNumber)
	if err != nil {
		s.openFilesMutex.Unlock()
		return nil, err
	}
	openFile.RLock()
	s.openFilesMutex.Unlock()
	return openFile, nil
}

// openFile opens fileNumber read-only, evicting the least recently used
// handle when the cache is full. openFilesMutex must be write-locked.
func (s *flatFileStore) openFile(fileNumber uint32) (*lockableFile, error) {
	file, err := s.fs.openRead(flatFilePath(s.basePath, s.storeName, fileNumber))
	if err != nil {
		return nil, err
	}
	flatFile := &lockableFile{file: file}

	s.lruMutex.Lock()
	lruList := s.openFilesLRU
	if lruList.Len() >= maxOpenFiles {
		lruFileNumber := lruList.Remove(lruList.Back()).(uint32)
		oldFile := s.openFiles[lruFileNumber]

		oldFile.Lock()
		_ = oldFile.Close()
		oldFile.Unlock()

		delete(s.openFiles, lruFileNumber)
		delete(s.fileNumberToLRUElement, lruFileNumber)
	}
	s.fileNumberToLRUElement[fileNumber] = lruList.PushFront(fileNumber)
	s.lruMutex.Unlock()

	s.openFiles[fileNumber] = flatFile
	return flatFile, nil
}

// closeFile drops a cached read-only handle, if any. openFilesMutex must be
// write-locked.
func (s *flatFileStore) closeFile(fileNumber uint32) {
	openFile, ok := s.openFiles[fileNumber]
	if !ok {
		return
	}
	s.lruMutex.Lock()
	s.openFilesLRU.Remove(s.fileNumberToLRUElement[fileNumber])
	delete(s.fileNumberToLRUElement, fileNumber)
	s.lruMutex.Unlock()

	openFile.Lock()
	_ = openFile.Close()
	openFile.Unlock()
	delete(s.openFiles, fileNumber)
}
