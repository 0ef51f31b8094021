package ff

import (
	"container/list"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

const (
	// maxOpenFiles bounds the read-only handles cached per store. The
	// current write file is tracked separately.
	maxOpenFiles = 25

	// defaultMaxFileSize is the size at which a store rolls over to the next
	// file. Offsets are uint32, so it must stay below 4 GiB.
	defaultMaxFileSize uint32 = 512 * 1024 * 1024
)

var (
	// byteOrder is used for entry lengths and serialized locations.
	byteOrder = binary.LittleEndian

	// crc32ByteOrder is the byte order used for CRC-32 checksums.
	crc32ByteOrder = binary.BigEndian

	crc32ChecksumLength = 4
	dataLengthLength    = 4

	castagnoli = crc32.MakeTable(crc32.Castagnoli)
)

// flatFileStore appends length-prefixed, checksummed entries to a numbered
// series of files and serves concurrent reads from them.
//
// Lock order, when more than one is held:
//  1. openFilesMutex
//  2. lruMutex
//  3. writeCursor
//  4. individual file locks
type flatFileStore struct {
	fs          fileSystem
	basePath    string
	storeName   string
	maxFileSize uint32

	openFilesMutex         sync.RWMutex
	openFiles              map[uint32]*lockableFile
	lruMutex               sync.Mutex
	openFilesLRU           *list.List // uint32 file numbers, most recent first
	fileNumberToLRUElement map[uint32]*list.Element

	writeCursor *writeCursor

	isClosed bool
}

// writeCursor is the file and offset the next entry is appended at.
type writeCursor struct {
	sync.RWMutex

	currentFile       *lockableFile
	currentFileNumber uint32
	currentOffset     uint32
}

func openFlatFileStore(fs fileSystem, basePath string, storeName string, maxFileSize uint32) (*flatFileStore, error) {
	fileNumber, fileOffset, err := findCurrentLocation(fs, basePath, storeName)
	if err != nil {
		return nil, err
	}

	return &flatFileStore{
		fs:                     fs,
		basePath:               basePath,
		storeName:              storeName,
		maxFileSize:            maxFileSize,
		openFiles:              make(map[uint32]*lockableFile),
		openFilesLRU:           list.New(),
		fileNumberToLRUElement: make(map[uint32]*list.Element),
		writeCursor: &writeCursor{
			currentFile:       &lockableFile{},
			currentFileNumber: fileNumber,
			currentOffset:     fileOffset,
		},
	}, nil
}

func (s *flatFileStore) Close() error {
	if s.isClosed {
		return errors.Errorf("cannot close a closed store %s", s.storeName)
	}
	s.isClosed = true

	s.writeCursor.Lock()
	defer s.writeCursor.Unlock()
	err := s.writeCursor.currentFile.Close()
	if err != nil {
		return errors.WithStack(err)
	}

	s.openFilesMutex.Lock()
	defer s.openFilesMutex.Unlock()
	for _, openFile := range s.openFiles {
		err := openFile.Close()
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (s *flatFileStore) currentLocation() *flatFileLocation {
	s.writeCursor.RLock()
	defer s.writeCursor.RUnlock()
	return &flatFileLocation{
		fileNumber: s.writeCursor.currentFileNumber,
		fileOffset: s.writeCursor.currentOffset,
		dataLength: 0,
	}
}

// findCurrentLocation walks the store's files in order and reports the end of
// the last one as the write position.
func findCurrentLocation(fs fileSystem, dbPath string, storeName string) (fileNumber uint32, fileLength uint32, err error) {
	currentFileNumber := uint32(0)
	currentFileLength := uint32(0)
	for {
		size, exists, err := fs.size(flatFilePath(dbPath, storeName, currentFileNumber))
		if err != nil {
			return 0, 0, err
		}
		if !exists {
			if currentFileNumber > 0 {
				fileNumber = currentFileNumber - 1
			}
			fileLength = currentFileLength
			break
		}
		currentFileLength = uint32(size)
		currentFileNumber++
	}

	log.Tracef("Scan for store '%s' found latest file #%d with length %d",
		storeName, fileNumber, fileLength)
	return fileNumber, fileLength, nil
}

// flatFilePath returns the path of the given store file, e.g. blk00003.dat.
func flatFilePath(dbPath string, storeName string, fileNumber uint32) string {
	fileName := fmt.Sprintf("%s%05d.dat", storeName, fileNumber)
	return filepath.Join(dbPath, fileName)
}
