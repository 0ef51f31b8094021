package ff

import (
	"github.com/pkg/errors"
)

// scan calls fn for every intact entry in file order, up to the write cursor.
// An entry that fails to decode ends the scan of its file; scanning resumes at
// the next file. fn returns false to stop early.
func (s *flatFileStore) scan(fn func(location *flatFileLocation, data []byte) (bool, error)) error {
	if s.isClosed {
		return errors.Errorf("cannot scan a closed store %s", s.storeName)
	}

	end := s.currentLocation()
	for fileNumber := uint32(0); fileNumber <= end.fileNumber; fileNumber++ {
		fileEnd := end.fileOffset
		if fileNumber < end.fileNumber {
			size, exists, err := s.fs.size(flatFilePath(s.basePath, s.storeName, fileNumber))
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			fileEnd = uint32(size)
		}

		offset := uint32(0)
		for offset+uint32(dataLengthLength+crc32ChecksumLength) <= fileEnd {
			data, entryLength, err := s.readEntryAt(fileNumber, offset, fileEnd)
			if err != nil {
				log.Warnf("Stopped scanning store '%s' file %d at offset %d: %s",
					s.storeName, fileNumber, offset, err)
				break
			}
			location := &flatFileLocation{
				fileNumber: fileNumber,
				fileOffset: offset,
				dataLength: entryLength,
			}
			more, err := fn(location, data)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
			offset += entryLength
		}
	}
	return nil
}

// readEntryAt decodes the entry starting at offset without knowing its length
// in advance.
func (s *flatFileStore) readEntryAt(fileNumber, offset, fileEnd uint32) ([]byte, uint32, error) {
	flatFile, err := s.flatFile(fileNumber)
	if err != nil {
		return nil, 0, err
	}
	defer flatFile.RUnlock()

	var lengthBytes [4]byte
	_, err = flatFile.file.ReadAt(lengthBytes[:], int64(offset))
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	entryLength := uint64(byteOrder.Uint32(lengthBytes[:])) +
		uint64(dataLengthLength+crc32ChecksumLength)
	if uint64(offset)+entryLength > uint64(fileEnd) {
		return nil, 0, errors.Errorf("entry of %d bytes runs past the end of the file", entryLength)
	}

	entry := make([]byte, entryLength)
	_, err = flatFile.file.ReadAt(entry, int64(offset))
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	data, err := decodeEntry(s.storeName, entry)
	if err != nil {
		return nil, 0, err
	}
	return data, uint32(entryLength), nil
}
