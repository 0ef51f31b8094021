package serialization

import (
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

// errNoEncodingForType signifies that there's no encoding for the given type.
var errNoEncodingForType = errors.New("there's no encoding for this type")

var littleEndian = binary.LittleEndian

// WriteElement writes the little endian representation of element to w.
func WriteElement(w io.Writer, element interface{}) error {
	var buf [8]byte
	switch e := element.(type) {
	case int32:
		littleEndian.PutUint32(buf[:4], uint32(e))
		_, err := w.Write(buf[:4])
		return errors.WithStack(err)

	case uint32:
		littleEndian.PutUint32(buf[:4], e)
		_, err := w.Write(buf[:4])
		return errors.WithStack(err)

	case int64:
		littleEndian.PutUint64(buf[:], uint64(e))
		_, err := w.Write(buf[:])
		return errors.WithStack(err)

	case uint64:
		littleEndian.PutUint64(buf[:], e)
		_, err := w.Write(buf[:])
		return errors.WithStack(err)

	case bool:
		buf[0] = 0x00
		if e {
			buf[0] = 0x01
		}
		_, err := w.Write(buf[:1])
		return errors.WithStack(err)

	case chainhash.Hash:
		_, err := w.Write(e[:])
		return errors.WithStack(err)

	case *chainhash.Hash:
		_, err := w.Write(e[:])
		return errors.WithStack(err)
	}

	return errors.Wrapf(errNoEncodingForType, "couldn't find a way to write type %T", element)
}

// WriteElements writes multiple items to w. It is equivalent to multiple
// calls to WriteElement.
func WriteElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := WriteElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadElement reads the next sequence of bytes from r using little endian
// depending on the concrete type of element pointed to.
func ReadElement(r io.Reader, element interface{}) error {
	var buf [8]byte
	switch e := element.(type) {
	case *int32:
		_, err := io.ReadFull(r, buf[:4])
		if err != nil {
			return errors.WithStack(err)
		}
		*e = int32(littleEndian.Uint32(buf[:4]))
		return nil

	case *uint32:
		_, err := io.ReadFull(r, buf[:4])
		if err != nil {
			return errors.WithStack(err)
		}
		*e = littleEndian.Uint32(buf[:4])
		return nil

	case *int64:
		_, err := io.ReadFull(r, buf[:])
		if err != nil {
			return errors.WithStack(err)
		}
		*e = int64(littleEndian.Uint64(buf[:]))
		return nil

	case *uint64:
		_, err := io.ReadFull(r, buf[:])
		if err != nil {
			return errors.WithStack(err)
		}
		*e = littleEndian.Uint64(buf[:])
		return nil

	case *bool:
		_, err := io.ReadFull(r, buf[:1])
		if err != nil {
			return errors.WithStack(err)
		}
		switch buf[0] {
		case 0x00:
			*e = false
		case 0x01:
			*e = true
		default:
			return errors.Errorf("invalid boolean byte %#x", buf[0])
		}
		return nil

	case *chainhash.Hash:
		_, err := io.ReadFull(r, e[:])
		return errors.WithStack(err)
	}

	return errors.Wrapf(errNoEncodingForType, "couldn't find a way to read type %T", element)
}

// ReadElements reads multiple items from r. It is equivalent to multiple
// calls to ReadElement.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := ReadElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}
