package sqlitestore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rangeidx/cache"
)

func testCache(t *testing.T) *cache.Manager {
	t.Helper()
	m, err := cache.New(t.TempDir())
	require.NoError(t, err)
	return m
}
