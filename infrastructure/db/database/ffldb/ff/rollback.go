package ff

import (
	"github.com/pkg/errors"
)

// rollback discards everything written after targetLocation: later files are
// removed and the target file is truncated at its offset. A target at or past
// the write cursor is a no-op.
func (s *flatFileStore) rollback(targetLocation *flatFileLocation) error {
	if s.isClosed {
		return errors.Errorf("cannot rollback a closed store %s",
			s.storeName)
	}

	s.openFilesMutex.Lock()
	defer s.openFilesMutex.Unlock()

	cursor := s.writeCursor
	cursor.Lock()
	defer cursor.Unlock()

	if targetLocation.fileNumber > cursor.currentFileNumber ||
		(targetLocation.fileNumber == cursor.currentFileNumber &&
			targetLocation.fileOffset >= cursor.currentOffset) {
		return nil
	}

	log.Warnf("Rolling back store '%s' from %d:%d to %d:%d", s.storeName,
		cursor.currentFileNumber, cursor.currentOffset,
		targetLocation.fileNumber, targetLocation.fileOffset)

	cursor.currentFile.Lock()
	err := cursor.currentFile.Close()
	cursor.currentFile.Unlock()
	if err != nil {
		return errors.WithStack(err)
	}

	for fileNumber := cursor.currentFileNumber; fileNumber > targetLocation.fileNumber; fileNumber-- {
		s.closeFile(fileNumber)
		path := flatFilePath(s.basePath, s.storeName, fileNumber)
		_, exists, err := s.fs.size(path)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		err = s.fs.remove(path)
		if err != nil {
			return errors.Wrapf(err, "failed to remove file %d of store '%s'",
				fileNumber, s.storeName)
		}
	}

	s.closeFile(targetLocation.fileNumber)
	file, err := s.fs.openWrite(flatFilePath(s.basePath, s.storeName, targetLocation.fileNumber))
	if err != nil {
		return err
	}
	err = file.Truncate(int64(targetLocation.fileOffset))
	if err == nil {
		err = file.Sync()
	}
	if err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "failed to truncate file %d of store '%s'",
			targetLocation.fileNumber, s.storeName)
	}

	cursor.currentFile = &lockableFile{file: file}
	cursor.currentFileNumber = targetLocation.fileNumber
	cursor.currentOffset = targetLocation.fileOffset
	return nil
}
