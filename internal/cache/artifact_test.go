package cache

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodemill/lodemill/internal/asset"
	"github.com/lodemill/lodemill/internal/env"
	"github.com/lodemill/lodemill/internal/version"
)

func newTestCache(t *testing.T, codec Codec) *ArtifactCache {
	t.Helper()
	c, err := New(afero.NewMemMapFs(), "cache", codec, slog.Default())
	require.NoError(t, err)
	return c
}

func TestParseCodec(t *testing.T) {
	for name, want := range map[string]Codec{
		"":       CodecNone,
		"none":   CodecNone,
		"brotli": CodecBrotli,
		"xz":     CodecXZ,
	} {
		got, err := ParseCodec(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseCodec("zstd")
	assert.Error(t, err)
}

func TestCodecRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("cache entry payload "), 100)

	for _, codec := range []Codec{CodecNone, CodecBrotli, CodecXZ} {
		t.Run(string(codec), func(t *testing.T) {
			encoded, err := codec.Encode(payload)
			require.NoError(t, err)
			decoded, err := codec.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, payload, decoded)
		})
	}
}

func TestBlobPutGet(t *testing.T) {
	c := newTestCache(t, CodecNone)

	require.NoError(t, c.PutBlob("abcd1234", bytes.NewReader([]byte("blob data"))))
	assert.True(t, c.HasBlob("abcd1234"))
	assert.False(t, c.HasBlob("ffff0000"))

	r, err := c.Blob("abcd1234")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, []byte("blob data"), data)
}

func TestBlobPutIdempotent(t *testing.T) {
	c := newTestCache(t, CodecNone)

	require.NoError(t, c.PutBlob("key1", bytes.NewReader([]byte("original"))))
	// Second write under the same hash leaves the first value in place.
	require.NoError(t, c.PutBlob("key1", bytes.NewReader([]byte("ignored"))))

	data, err := c.BlobBytes("key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func testSnapshot(t *testing.T) *asset.Snapshot {
	t.Helper()
	a := asset.New(asset.Options{
		IDBase:      "a.js",
		FilePath:    "a.js",
		Type:        "js",
		Environment: env.New("browser"),
		Content:     asset.BufferContent([]byte("x")),
		ContentHash: "ch",
	})
	return a.Snapshot()
}

func TestEntryPutGet(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecBrotli, CodecXZ} {
		t.Run(string(codec), func(t *testing.T) {
			c := newTestCache(t, codec)

			entry := &Entry{Assets: []*asset.Snapshot{testSnapshot(t)}}
			require.NoError(t, c.Put("deadbeef", entry))

			got, ok := c.Get("deadbeef")
			require.True(t, ok)
			require.Len(t, got.Assets, 1)
			assert.Equal(t, "a.js", got.Assets[0].FilePath)
			assert.Equal(t, version.CacheSchema(), got.Version)
		})
	}
}

func TestEntryMissOnUnknownKey(t *testing.T) {
	c := newTestCache(t, CodecNone)
	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestEntryMissOnVersionMismatch(t *testing.T) {
	c := newTestCache(t, CodecNone)
	require.NoError(t, c.Put("key", &Entry{Assets: []*asset.Snapshot{testSnapshot(t)}}))

	old := version.Version
	version.Version = "other-version"
	t.Cleanup(func() { version.Version = old })

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestEntryMissOnCorruptData(t *testing.T) {
	c := newTestCache(t, CodecBrotli)
	require.NoError(t, c.Put("key", &Entry{Assets: []*asset.Snapshot{testSnapshot(t)}}))

	// Corrupt the stored entry in place; the read must degrade to a miss.
	keys, err := c.EntryKeys()
	require.NoError(t, err)
	require.Contains(t, keys, "key")
	require.NoError(t, c.sandbox.AtomicWrite("entries/ke/key.json.br", []byte("garbage")))

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestEntryKeys(t *testing.T) {
	c := newTestCache(t, CodecNone)
	require.NoError(t, c.Put("aaaa", &Entry{}))
	require.NoError(t, c.Put("bbbb", &Entry{}))

	keys, err := c.EntryKeys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aaaa", "bbbb"}, keys)
}
