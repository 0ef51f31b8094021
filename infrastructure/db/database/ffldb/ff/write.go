package ff

import (
	"hash/crc32"

	"github.com/pkg/errors"
)

// write appends data as a new entry and returns where it landed. The store
// moves on to a new file when the entry would push the current one past
// maxFileSize. A failed write is truncated away so the cursor never points
// past a partial entry.
func (s *flatFileStore) write(data []byte) (*flatFileLocation, error) {
	if s.isClosed {
		return nil, errors.Errorf("cannot write to a closed store %s",
			s.storeName)
	}

	entryLength := uint64(dataLengthLength) + uint64(len(data)) + uint64(crc32ChecksumLength)
	if entryLength > uint64(s.maxFileSize) {
		return nil, errors.Errorf("entry of %d bytes exceeds the maximum file "+
			"size of store '%s'", entryLength, s.storeName)
	}

	cursor := s.writeCursor
	cursor.Lock()
	defer cursor.Unlock()

	if uint64(cursor.currentOffset)+entryLength > uint64(s.maxFileSize) {
		err := s.finishCurrentFile()
		if err != nil {
			return nil, err
		}
		cursor.currentFileNumber++
		cursor.currentOffset = 0
	}

	if cursor.currentFile.file == nil {
		file, err := s.fs.openWrite(flatFilePath(s.basePath, s.storeName, cursor.currentFileNumber))
		if err != nil {
			return nil, err
		}
		cursor.currentFile.Lock()
		cursor.currentFile.file = file
		cursor.currentFile.Unlock()
	}

	entry := make([]byte, entryLength)
	byteOrder.PutUint32(entry[:dataLengthLength], uint32(len(data)))
	copy(entry[dataLengthLength:], data)
	checksum := crc32.Checksum(entry[:len(entry)-crc32ChecksumLength], castagnoli)
	crc32ByteOrder.PutUint32(entry[len(entry)-crc32ChecksumLength:], checksum)

	cursor.currentFile.Lock()
	_, err := cursor.currentFile.file.WriteAt(entry, int64(cursor.currentOffset))
	if err != nil {
		truncateErr := cursor.currentFile.file.Truncate(int64(cursor.currentOffset))
		cursor.currentFile.Unlock()
		if truncateErr != nil {
			log.Warnf("Failed to truncate store '%s' file %d after a failed "+
				"write: %s", s.storeName, cursor.currentFileNumber, truncateErr)
		}
		return nil, errors.Wrapf(err, "failed to write to store '%s' file %d",
			s.storeName, cursor.currentFileNumber)
	}
	cursor.currentFile.Unlock()

	location := &flatFileLocation{
		fileNumber: cursor.currentFileNumber,
		fileOffset: cursor.currentOffset,
		dataLength: uint32(entryLength),
	}
	cursor.currentOffset += uint32(entryLength)
	return location, nil
}

// finishCurrentFile syncs and closes the write file. The writeCursor must be
// locked.
func (s *flatFileStore) finishCurrentFile() error {
	currentFile := s.writeCursor.currentFile
	currentFile.Lock()
	defer currentFile.Unlock()
	if currentFile.file == nil {
		return nil
	}
	err := currentFile.file.Sync()
	if err != nil {
		return errors.Wrapf(err, "failed to sync store '%s' file %d",
			s.storeName, s.writeCursor.currentFileNumber)
	}
	return errors.WithStack(currentFile.Close())
}

// sync flushes the write file to stable storage. Earlier files were synced
// when the store rolled over from them.
func (s *flatFileStore) sync() error {
	if s.isClosed {
		return errors.Errorf("cannot sync a closed store %s", s.storeName)
	}
	s.writeCursor.RLock()
	defer s.writeCursor.RUnlock()

	currentFile := s.writeCursor.currentFile
	currentFile.RLock()
	defer currentFile.RUnlock()
	if currentFile.file == nil {
		return nil
	}
	return errors.Wrapf(currentFile.file.Sync(), "failed to sync store '%s'", s.storeName)
}
