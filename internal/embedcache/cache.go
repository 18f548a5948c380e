// Package embedcache implements the content-addressed embedding cache
// (spec §4.2): (model bucket, sha256(content)) -> []float32, so re-indexing
// unchanged content never re-runs the embedder.
package embedcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Cache is a bbolt-backed store of embedding vectors keyed by content
// hash, partitioned into one bucket per embedding model so switching
// models never serves stale vectors under the same key.
type Cache struct {
	db *bolt.DB
}

// Open creates or opens the cache file at path, creating parent
// directories as needed.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("embedcache: create dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("embedcache: open %s: %w", path, err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying file lock.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key hashes the embedding input (typically symbol name + snippet) with
// sha256, returning the hex digest used as the bucket key.
func Key(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for (model, content), and whether it was
// present.
func (c *Cache) Get(model, content string) ([]float32, bool, error) {
	key := Key(content)
	var vec []float32
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(model))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		v, err := decodeVector(raw)
		if err != nil {
			return err
		}
		vec, found = v, true
		return nil
	})
	return vec, found, err
}

// GetBatch looks up multiple contents under one read transaction,
// returning a map of content -> vector for whichever keys hit.
func (c *Cache) GetBatch(model string, contents []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(contents))
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(model))
		if b == nil {
			return nil
		}
		for _, content := range contents {
			raw := b.Get([]byte(Key(content)))
			if raw == nil {
				continue
			}
			vec, err := decodeVector(raw)
			if err != nil {
				return err
			}
			out[content] = vec
		}
		return nil
	})
	return out, err
}

// Set stores the vector for (model, content), creating the model's
// bucket on first use.
func (c *Cache) Set(model, content string, vector []float32) error {
	key := Key(content)
	raw := encodeVector(vector)
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(model))
		if err != nil {
			return fmt.Errorf("embedcache: create bucket %s: %w", model, err)
		}
		return b.Put([]byte(key), raw)
	})
}

// SetBatch stores multiple vectors for one model under a single write
// transaction.
func (c *Cache) SetBatch(model string, entries map[string][]float32) error {
	if len(entries) == 0 {
		return nil
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(model))
		if err != nil {
			return fmt.Errorf("embedcache: create bucket %s: %w", model, err)
		}
		for content, vector := range entries {
			if err := b.Put([]byte(Key(content)), encodeVector(vector)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of cached vectors for a model, or 0 if the
// model has never been used.
func (c *Cache) Count(model string) (int, error) {
	n := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(model))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// encodeVector serializes a float32 slice as big-endian IEEE 754 bytes,
// same wire width as the vectors themselves, so the cache file is not
// dominated by JSON overhead.
func encodeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, f := range vector {
		binary.BigEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("embedcache: corrupt vector, length %d not a multiple of 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	r := bytes.NewReader(raw)
	for i := range out {
		var bits uint32
		if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
			return nil, err
		}
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
