package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStore_Save(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "/static/receipts")
	require.NoError(t, err)

	t.Run("writes file and returns public url", func(t *testing.T) {
		url, err := store.Save(context.Background(), "bill.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(url, "/static/receipts/"))
		assert.True(t, strings.HasSuffix(url, ".jpg"))

		data, err := os.ReadFile(filepath.Join(dir, filepath.Base(url)))
		require.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(data))
	})

	t.Run("distinct uploads get distinct names", func(t *testing.T) {
		a, err := store.Save(context.Background(), "a.png", "image/png", strings.NewReader("a"))
		require.NoError(t, err)
		b, err := store.Save(context.Background(), "a.png", "image/png", strings.NewReader("b"))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("rejects unsupported content type", func(t *testing.T) {
		_, err := store.Save(context.Background(), "evil.svg", "image/svg+xml", strings.NewReader("<svg/>"))
		assert.Error(t, err)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasSuffix(e.Name(), ".svg"))
		}
	})
}

func TestAllowedContentType(t *testing.T) {
	assert.True(t, AllowedContentType("image/jpeg"))
	assert.True(t, AllowedContentType("application/pdf"))
	assert.False(t, AllowedContentType("text/html"))
}
