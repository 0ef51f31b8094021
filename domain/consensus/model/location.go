package model

import "fmt"

// Location identifies an entry in one of the flat file stores.
type Location struct {
	FileNumber uint32
	Offset     uint32
	Length     uint32
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d+%d", l.FileNumber, l.Offset, l.Length)
}
