package ff

import "github.com/pkg/errors"

// flatFileLocationSerializedSize is the size in bytes of a serialized flat
// file location. See serializeLocation for further details.
const flatFileLocationSerializedSize = 12

// flatFileLocation identifies a particular flat file location.
type flatFileLocation struct {
	fileNumber uint32
	fileOffset uint32
	dataLength uint32
}

// serializeLocation returns the serialization of the passed flat file location
// of certain data. This to later on be used for retrieval of said data.
// The serialized location format is:
//
//	[0:4]  File Number (4 bytes)
//	[4:8]  File offset (4 bytes)
//	[8:12] Data length (4 bytes)
func serializeLocation(location *flatFileLocation) []byte {
	var serializedLocation [flatFileLocationSerializedSize]byte
	byteOrder.PutUint32(serializedLocation[0:4], location.fileNumber)
	byteOrder.PutUint32(serializedLocation[4:8], location.fileOffset)
	byteOrder.PutUint32(serializedLocation[8:12], location.dataLength)
	return serializedLocation[:]
}

// deserializeLocation deserializes the passed serialized flat file location.
// See serializeLocation for further details.
func deserializeLocation(serializedLocation []byte) (*flatFileLocation, error) {
	if len(serializedLocation) != flatFileLocationSerializedSize {
		return nil, errors.Errorf("unexpected serializedLocation length: %d",
			len(serializedLocation))
	}
	location := &flatFileLocation{
		fileNumber: byteOrder.Uint32(serializedLocation[0:4]),
		fileOffset: byteOrder.Uint32(serializedLocation[4:8]),
		dataLength: byteOrder.Uint32(serializedLocation[8:12]),
	}
	return location, nil
}

// DataLength returns the number of payload bytes referenced by a serialized
// location, excluding the entry framing.
func DataLength(serializedLocation []byte) (uint32, error) {
	location, err := deserializeLocation(serializedLocation)
	if err != nil {
		return 0, err
	}
	return location.dataLength - uint32(dataLengthLength+crc32ChecksumLength), nil
}

// ParseLocation splits a serialized location into its file number, offset and
// framed entry length.
func ParseLocation(serializedLocation []byte) (fileNumber, offset, length uint32, err error) {
	location, err := deserializeLocation(serializedLocation)
	if err != nil {
		return 0, 0, 0, err
	}
	return location.fileNumber, location.fileOffset, location.dataLength, nil
}

// SerializeLocation builds a serialized location from its parts. It is the
// inverse of ParseLocation.
func SerializeLocation(fileNumber, offset, length uint32) []byte {
	return serializeLocation(&flatFileLocation{
		fileNumber: fileNumber,
		fileOffset: offset,
		dataLength: length,
	})
}
