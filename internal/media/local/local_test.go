package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)
	return path
}

func Test_Uploader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "media")
	u, err := New(dir, "http://localhost:8080/media")
	require.NoError(t, err)

	t.Run("upload ok", func(t *testing.T) {
		path := writeTemp(t, "avatar.png", "png-content")

		url, err := u.Upload(t.Context(), path)

		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(url, "http://localhost:8080/media/"), "got %s", url)
		assert.True(t, strings.HasSuffix(url, ".png"))

		stored, err := os.ReadFile(filepath.Join(u.Dir(), filepath.Base(url)))
		require.NoError(t, err)
		assert.Equal(t, "png-content", string(stored))

		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err), "local file must be removed after upload")
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := u.Upload(t.Context(), filepath.Join(t.TempDir(), "nope.png"))

		assert.Error(t, err)
	})

	t.Run("canceled context removes file", func(t *testing.T) {
		path := writeTemp(t, "avatar.png", "png-content")
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := u.Upload(ctx, path)

		assert.ErrorIs(t, err, context.Canceled)
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err), "local file must be removed on failure too")
	})
}
