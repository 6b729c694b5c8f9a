package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodemill/lodemill/internal/asset"
	"github.com/lodemill/lodemill/internal/env"
	"github.com/lodemill/lodemill/internal/transformer"
)

func TestRawPassthrough(t *testing.T) {
	a := asset.New(asset.Options{
		IDBase:      "a.txt",
		FilePath:    "a.txt",
		Type:        "txt",
		Environment: env.New("browser"),
		Content:     asset.BufferContent([]byte("unchanged")),
	})

	results, err := Raw{}.Transform(context.Background(), a, &transformer.Context{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "txt", results[0].Type)

	b, err := results[0].Content.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("unchanged"), b)
}

func TestRawRegistered(t *testing.T) {
	impl, err := transformer.Default().New("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", impl.Name())
}
