package database

import (
	"bytes"
	"encoding/hex"
)

var separator = []byte("/")

// Key is a helper type meant to combine prefix
// and keys into a single full key-value
// database key.
type Key struct {
	prefix, suffix []byte
}

// Bytes returns the prefix concatenated to the suffix.
func (k *Key) Bytes() []byte {
	keyPath := make([]byte, len(k.prefix)+len(k.suffix))
	copy(keyPath, k.prefix)
	copy(keyPath[len(k.prefix):], k.suffix)
	return keyPath
}

func (k *Key) String() string {
	return string(k.prefix) + hex.EncodeToString(k.suffix)
}

// Suffix returns the key part of the key, without its bucket path.
func (k *Key) Suffix() []byte {
	return k.suffix
}

// newKey returns a new key composed
// of the given prefix and suffix
func newKey(prefix, suffix []byte) *Key {
	return &Key{prefix: prefix, suffix: suffix}
}

// Bucket is a helper type meant to combine buckets
// and sub-buckets that can be used to create database
// keys and prefix-based cursors.
type Bucket struct {
	path [][]byte
}

// MakeBucket creates a new Bucket using the given path
// of buckets.
func MakeBucket(path ...[]byte) *Bucket {
	return &Bucket{path: path}
}

// Bucket returns the sub-bucket of the current bucket
// defined by bucketBytes.
func (b *Bucket) Bucket(bucketBytes []byte) *Bucket {
	newPath := make([][]byte, len(b.path)+1)
	copy(newPath, b.path)
	newPath[len(b.path)] = bucketBytes

	return MakeBucket(newPath...)
}

// Key returns the key inside of the current bucket.
func (b *Bucket) Key(suffix []byte) *Key {
	return newKey(b.Path(), suffix)
}

// Path returns the full path of the current bucket.
func (b *Bucket) Path() []byte {
	bucketPath := bytes.Join(b.path, separator)

	bucketPathWithFinalSeparator := make([]byte, len(bucketPath)+len(separator))
	copy(bucketPathWithFinalSeparator, bucketPath)
	copy(bucketPathWithFinalSeparator[len(bucketPath):], separator)

	return bucketPathWithFinalSeparator
}

// KeyFromBytes splits a full key read back from a cursor over bucket into
// its bucket path and suffix.
func (b *Bucket) KeyFromBytes(fullKey []byte) *Key {
	path := b.Path()
	suffix := make([]byte, len(fullKey)-len(path))
	copy(suffix, fullKey[len(path):])
	return newKey(path, suffix)
}
