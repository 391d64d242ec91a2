// Package store provides the local key-value backends that hold the active
// session on this machine
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	localBucket = "local"
	openTimeout = 1 * time.Second
)

// Client is a BoltDB backed Storage. The database is opened for the duration
// of each operation only, so that several lifetrack processes can take turns
// on the same file.
type Client struct {
	path string
	mu   sync.Mutex
}

// NewClient returns a wrapper to a BoltDB file and creates the bucket used
// for storing data if it does not exist already.
func NewClient(dbPath string) (*Client, error) {
	err := os.MkdirAll(filepath.Dir(dbPath), 0o755)
	if err != nil {
		return nil, err
	}

	c := &Client{path: dbPath}

	err = c.update(func(b *bolt.Bucket) error {
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) Get(key string) ([]byte, error) {
	var value []byte

	err := c.view(func(b *bolt.Bucket) error {
		v := b.Get([]byte(key))
		if v != nil {
			// bolt values are only valid for the life of the transaction
			value = bytes.Clone(v)
		}

		return nil
	})

	return value, err
}

func (c *Client) Apply(batch Batch) error {
	for k := range batch {
		if k == "" {
			return errInvalidKey.Fmt(k)
		}
	}

	return c.update(func(b *bolt.Bucket) error {
		for _, k := range batch.SortedKeys() {
			v := batch[k]

			var err error
			if v == nil {
				err = b.Delete([]byte(k))
			} else {
				err = b.Put([]byte(k), v)
			}

			if err != nil {
				return err
			}
		}

		return nil
	})
}

func (c *Client) Keys() ([]string, error) {
	var keys []string

	err := c.view(func(b *bolt.Bucket) error {
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})

	return keys, err
}

// Close is a no-op since the database is never held open between operations.
func (c *Client) Close() error {
	return nil
}

func (c *Client) view(fn func(b *bolt.Bucket) error) error {
	return c.withDB(func(db *bolt.DB) error {
		return db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket([]byte(localBucket))
			if b == nil {
				return nil
			}

			return fn(b)
		})
	})
}

func (c *Client) update(fn func(b *bolt.Bucket) error) error {
	return c.withDB(func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists([]byte(localBucket))
			if err != nil {
				return err
			}

			return fn(b)
		})
	})
}

func (c *Client) withDB(fn func(db *bolt.DB) error) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	db, err := openDB(c.path)
	if err != nil {
		return err
	}

	defer func() {
		cerr := db.Close()
		if err == nil {
			err = cerr
		}
	}()

	return fn(db)
}

// openDB creates or opens a database and locks it.
func openDB(pathToDB string) (*bolt.DB, error) {
	var fileMode fs.FileMode = 0o600

	db, err := bolt.Open(
		pathToDB,
		fileMode,
		&bolt.Options{Timeout: openTimeout},
	)
	if err != nil {
		if errors.Is(err, bolt.ErrDatabaseOpen) ||
			errors.Is(err, bolt.ErrTimeout) {
			return nil, ErrStoreBusy.Wrap(err)
		}

		return nil, fmt.Errorf("open bolt store: %w", err)
	}

	return db, nil
}
