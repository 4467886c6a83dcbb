// Package cache stores repository metadata documents between runs so that
// repeated reconciliations do not re-download unchanged package metadata.
package cache

import (
	"bytes"
	"encoding/gob"
	"time"
)

// CacheVersion is incremented when the cache format changes.
const CacheVersion = 1

// KeySeparator separates the repository from the document path in keys.
const KeySeparator = '\x00'

// Entry is a cached metadata document.
type Entry struct {
	Version      int
	Body         []byte
	LastModified string // Last-Modified header of the response, if any
	FetchedAt    int64  // UnixNano
}

// Age returns how long ago the entry was fetched.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, e.FetchedAt))
}

// Encode serializes the entry to bytes using gob.
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes bytes into the entry using gob.
func (e *Entry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// MakeKey builds a key from a repository URL and a document path.
// Format: <repository>\x00<path>
func MakeKey(repository, path string) []byte {
	return []byte(repository + string(KeySeparator) + path)
}

// ParseKey extracts the repository and document path from a key.
func ParseKey(key []byte) (repository, path string) {
	idx := bytes.IndexByte(key, KeySeparator)
	if idx == -1 {
		return string(key), ""
	}
	return string(key[:idx]), string(key[idx+1:])
}

// MakeKeyPrefix returns the prefix shared by every key of a repository.
func MakeKeyPrefix(repository string) []byte {
	return []byte(repository + string(KeySeparator))
}
