package store

import (
	"bytes"
	"slices"
)

// Storage is a local key-value persistence layer, the equivalent of a
// browser's localStorage. Missing keys read as nil with no error.
type Storage interface {
	// Get returns the value stored under key, or nil if it is absent
	Get(key string) ([]byte, error)
	// Apply commits every change in the batch as one logical write
	Apply(b Batch) error
	// Keys lists the stored keys
	Keys() ([]string, error)
	// Close releases the underlying resources
	Close() error
}

// Batch is a set of changes. A nil value removes the key.
type Batch map[string][]byte

// Put records a write of value under key.
func (b Batch) Put(key string, value []byte) Batch {
	if value == nil {
		value = []byte{}
	}

	b[key] = value

	return b
}

// Delete records the removal of key.
func (b Batch) Delete(key string) Batch {
	b[key] = nil

	return b
}

// SortedKeys returns the keys of the batch in lexical order so that changes
// are applied and published deterministically.
func (b Batch) SortedKeys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

// Clone returns a deep copy of the batch.
func (b Batch) Clone() Batch {
	c := make(Batch, len(b))
	for k, v := range b {
		if v == nil {
			c[k] = nil
			continue
		}

		c[k] = bytes.Clone(v)
	}

	return c
}

// Set writes a single key.
func Set(s Storage, key string, value []byte) error {
	return s.Apply(Batch{}.Put(key, value))
}

// Remove deletes a single key. Removing a missing key is not an error.
func Remove(s Storage, key string) error {
	return s.Apply(Batch{}.Delete(key))
}
