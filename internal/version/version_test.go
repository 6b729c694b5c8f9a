package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLongContainsVersion(t *testing.T) {
	assert.Contains(t, Long(), Version)
	assert.Contains(t, Long(), ApplicationName)
}

func TestCacheSchemaMatchesVersion(t *testing.T) {
	assert.Equal(t, Version, CacheSchema())
}
