package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/lodemill/lodemill/internal/asset"
	"github.com/lodemill/lodemill/internal/storage"
	"github.com/lodemill/lodemill/internal/version"
)

// WriteError indicates a cache write failed. Fatal only when it prevents a
// commit from completing; read-side failures are always treated as misses.
type WriteError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("cache write %s: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Entry is the serialized value stored under one cache key: a versioned
// envelope of asset snapshots whose bytes live in the blob store.
type Entry struct {
	// Version is the engine version that wrote the entry. Entries written
	// by a different version miss on read.
	Version string            `json:"version"`
	Assets  []*asset.Snapshot `json:"assets"`
}

// ArtifactCache is the process-wide content-addressed store. It is
// append-only with last-writer-wins semantics: concurrent writers under the
// same key agree on the value because the key encodes full input identity.
type ArtifactCache struct {
	sandbox *storage.Sandbox
	codec   Codec
	logger  *slog.Logger
	index   *Index
}

// New creates an ArtifactCache rooted at dir on the given filesystem.
func New(fs afero.Fs, dir string, codec Codec, logger *slog.Logger) (*ArtifactCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sandbox, err := storage.NewSandbox(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("creating cache sandbox: %w", err)
	}
	for _, sub := range []string{"blobs", "entries"} {
		if err := sandbox.MkdirAll(sub); err != nil {
			return nil, fmt.Errorf("creating cache directory %s: %w", sub, err)
		}
	}
	return &ArtifactCache{
		sandbox: sandbox,
		codec:   codec,
		logger:  logger.With(slog.String("component", "cache")),
	}, nil
}

// WithIndex attaches a best-effort entry index used for stats and pruning.
func (c *ArtifactCache) WithIndex(idx *Index) *ArtifactCache {
	c.index = idx
	return c
}

// Index returns the attached index, nil if none.
func (c *ArtifactCache) Index() *Index {
	return c.index
}

// blobPath shards blobs by the first two hash characters to avoid huge
// directories.
func blobPath(hash string) string {
	shard := hash
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join("blobs", shard, hash)
}

func (c *ArtifactCache) entryPath(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join("entries", shard, key+".json"+c.codec.Ext())
}

// PutBlob stores committed asset bytes under their output hash. Writing is
// idempotent: an existing blob under the same hash is left in place.
func (c *ArtifactCache) PutBlob(hash string, r io.Reader) error {
	path := blobPath(hash)
	exists, err := c.sandbox.Exists(path)
	if err == nil && exists {
		return nil
	}
	if err := c.sandbox.AtomicWriteReader(path, r); err != nil {
		return &WriteError{Key: hash, Err: err}
	}
	return nil
}

// HasBlob reports whether a blob exists.
func (c *ArtifactCache) HasBlob(hash string) bool {
	exists, err := c.sandbox.Exists(blobPath(hash))
	return err == nil && exists
}

// Blob opens a blob for reading.
func (c *ArtifactCache) Blob(hash string) (io.ReadCloser, error) {
	return c.sandbox.Open(blobPath(hash))
}

// BlobBytes reads a blob fully into memory.
func (c *ArtifactCache) BlobBytes(hash string) ([]byte, error) {
	return c.sandbox.ReadFile(blobPath(hash))
}

// BlobSize returns the stored size of a blob.
func (c *ArtifactCache) BlobSize(hash string) (int64, error) {
	return c.sandbox.Size(blobPath(hash))
}

// Get looks up a cache entry. Read and decode failures are logged misses,
// never errors; a version mismatch is a miss.
func (c *ArtifactCache) Get(key string) (*Entry, bool) {
	path := c.entryPath(key)
	exists, err := c.sandbox.Exists(path)
	if err != nil || !exists {
		return nil, false
	}

	raw, err := c.sandbox.ReadFile(path)
	if err != nil {
		c.logger.Warn("cache entry unreadable, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	decoded, err := c.codec.Decode(raw)
	if err != nil {
		c.logger.Warn("cache entry undecodable, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(decoded, &entry); err != nil {
		c.logger.Warn("cache entry unparsable, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	if entry.Version != version.CacheSchema() {
		c.logger.Debug("cache entry version mismatch, treating as miss",
			slog.String("key", key),
			slog.String("entry_version", entry.Version),
		)
		return nil, false
	}

	if c.index != nil {
		c.index.Touch(key, int64(len(raw)))
	}
	return &entry, true
}

// Put stores an entry under the key. The entry's version field is stamped
// here.
func (c *ArtifactCache) Put(key string, entry *Entry) error {
	entry.Version = version.CacheSchema()
	data, err := json.Marshal(entry)
	if err != nil {
		return &WriteError{Key: key, Err: err}
	}
	encoded, err := c.codec.Encode(data)
	if err != nil {
		return &WriteError{Key: key, Err: err}
	}
	if err := c.sandbox.AtomicWrite(c.entryPath(key), encoded); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	if c.index != nil {
		c.index.Touch(key, int64(len(encoded)))
	}
	return nil
}

// RemoveEntry deletes an entry file. Used by the janitor.
func (c *ArtifactCache) RemoveEntry(key string) error {
	return c.sandbox.Remove(c.entryPath(key))
}

// RemoveBlob deletes a blob file. Used by the janitor.
func (c *ArtifactCache) RemoveBlob(hash string) error {
	return c.sandbox.Remove(blobPath(hash))
}

// blobHashes walks the blob store and returns every stored hash.
func (c *ArtifactCache) blobHashes() ([]string, error) {
	var hashes []string
	err := c.sandbox.Walk("blobs", func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		hashes = append(hashes, filepath.Base(path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking blobs: %w", err)
	}
	return hashes, nil
}

// EntryKeys walks the entry store and returns every stored key.
func (c *ArtifactCache) EntryKeys() ([]string, error) {
	var keys []string
	ext := ".json" + c.codec.Ext()
	err := c.sandbox.Walk("entries", func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if strings.HasSuffix(base, ext) {
			keys = append(keys, strings.TrimSuffix(base, ext))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking entries: %w", err)
	}
	return keys, nil
}
