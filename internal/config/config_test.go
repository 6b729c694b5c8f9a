package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, int64(5*1024*1024), cfg.BufferThresholdBytes())
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "brotli", cfg.Cache.Codec)
	assert.Equal(t, 30*24*time.Hour, cfg.Cache.Retention.Duration())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Engine.SourceMaps)
	assert.False(t, cfg.Engine.Minify)
}

func TestLoadByteSizeString(t *testing.T) {
	v := newTestViper(t)
	v.Set("engine.buffer_threshold", "2MB")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024), cfg.BufferThresholdBytes())
}

func TestLoadRetentionHumanReadable(t *testing.T) {
	v := newTestViper(t)
	v.Set("cache.retention", "30d")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 720*time.Hour, cfg.Cache.Retention.Duration())
}

func TestValidateCodec(t *testing.T) {
	v := newTestViper(t)
	v.Set("cache.codec", "zstd")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.codec")
}

func TestValidatePipelines(t *testing.T) {
	tests := []struct {
		name      string
		pipelines []map[string]any
		wantErr   string
	}{
		{
			name: "valid",
			pipelines: []map[string]any{
				{"glob": "*.ts", "transformers": []string{"typescript", "babel"}},
				{"glob": "*.js", "transformers": []string{"babel"}},
			},
		},
		{
			name: "empty glob",
			pipelines: []map[string]any{
				{"glob": "  ", "transformers": []string{"babel"}},
			},
			wantErr: "glob must not be empty",
		},
		{
			name: "no transformers",
			pipelines: []map[string]any{
				{"glob": "*.js", "transformers": []string{}},
			},
			wantErr: "at least one transformer",
		},
		{
			name: "duplicate glob",
			pipelines: []map[string]any{
				{"glob": "*.js", "transformers": []string{"babel"}},
				{"glob": "*.js", "transformers": []string{"swc"}},
			},
			wantErr: "duplicate glob",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestViper(t)
			v.Set("pipelines", tt.pipelines)

			cfg, err := Load(v)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, cfg.Pipelines, len(tt.pipelines))
		})
	}
}

func TestByteSizeJSONRoundTrip(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalJSON([]byte(`"5MB"`)))
	assert.Equal(t, int64(5*1024*1024), b.Bytes())

	require.NoError(t, b.UnmarshalJSON([]byte(`1024`)))
	assert.Equal(t, int64(1024), b.Bytes())

	out, err := ByteSize(5 * 1024 * 1024).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"5MiB"`, string(out))
}
