package ff

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// filer is the subset of *os.File the flat file store needs.
type filer interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Sync() error
	Close() error
}

// fileSystem abstracts where flat files live so the same store code serves
// durable and ephemeral databases.
type fileSystem interface {
	openRead(path string) (filer, error)
	openWrite(path string) (filer, error)
	size(path string) (size int64, exists bool, err error)
	remove(path string) error
}

type osFileSystem struct{}

func (osFileSystem) openRead(path string) (filer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return file, nil
}

func (osFileSystem) openWrite(path string) (filer, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return file, nil
}

func (osFileSystem) size(path string) (int64, bool, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, errors.WithStack(err)
	}
	return stat.Size(), true, nil
}

func (osFileSystem) remove(path string) error {
	return errors.WithStack(os.Remove(path))
}

// memFileSystem keeps every file as a byte slice. Closing a handle does not
// discard the contents; they live as long as the fileSystem itself.
type memFileSystem struct {
	mtx   sync.Mutex
	files map[string]*memFile
}

func newMemFileSystem() *memFileSystem {
	return &memFileSystem{files: make(map[string]*memFile)}
}

func (fs *memFileSystem) openRead(path string) (filer, error) {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	file, ok := fs.files[path]
	if !ok {
		return nil, errors.WithStack(&os.PathError{Op: "open", Path: path, Err: os.ErrNotExist})
	}
	return file, nil
}

func (fs *memFileSystem) openWrite(path string) (filer, error) {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	file, ok := fs.files[path]
	if !ok {
		file = &memFile{}
		fs.files[path] = file
	}
	return file, nil
}

func (fs *memFileSystem) size(path string) (int64, bool, error) {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	file, ok := fs.files[path]
	if !ok {
		return 0, false, nil
	}
	file.mtx.RLock()
	defer file.mtx.RUnlock()
	return int64(len(file.data)), true, nil
}

func (fs *memFileSystem) remove(path string) error {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	delete(fs.files, path)
	return nil
}

type memFile struct {
	mtx  sync.RWMutex
	data []byte
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.mtx.RLock()
	defer f.mtx.RUnlock()
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:], p)
	return len(p), nil
}

func (f *memFile) Truncate(size int64) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if size < int64(len(f.data)) {
		f.data = f.data[:size]
	}
	return nil
}

func (f *memFile) Sync() error  { return nil }
func (f *memFile) Close() error { return nil }
