package database

import "github.com/pkg/errors"

// ErrNotFound denotes that the requested item was not
// found in the database.
var ErrNotFound = errors.New("not found")

// ErrCorruption denotes that stored data exists but cannot be read back
// intact: a truncated file, a bad checksum or an inconsistent entry.
var ErrCorruption = errors.New("data corruption")

// IsNotFoundError checks whether an error is an ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCorruptionError checks whether an error is an ErrCorruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}
