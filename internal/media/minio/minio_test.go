package minio

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mclient "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/videotube/internal/testutil"
)

func Test_Uploader(t *testing.T) {
	minioC := testutil.StartMinioContainer(t)
	defer minioC.Terminate()

	cfg := Config{
		Endpoint:  minioC.Endpoint,
		AccessKey: minioC.AccessKey,
		SecretKey: minioC.SecretKey,
		Bucket:    minioC.Bucket,
	}

	t.Run("bucket must exist", func(t *testing.T) {
		c := cfg
		c.Bucket = "absent"

		_, err := New(t.Context(), c)

		assert.Error(t, err)
	})

	t.Run("upload ok", func(t *testing.T) {
		u, err := New(t.Context(), cfg)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "cover.jpg")
		require.NoError(t, os.WriteFile(path, []byte("jpeg-content"), 0o600))

		url, err := u.Upload(t.Context(), path)

		require.NoError(t, err)
		prefix := "http://" + minioC.Endpoint + "/" + minioC.Bucket + "/"
		assert.True(t, strings.HasPrefix(url, prefix), "got %s", url)
		assert.True(t, strings.HasSuffix(url, ".jpg"))

		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err), "local file must be removed after upload")

		obj, err := u.client.GetObject(t.Context(), minioC.Bucket, strings.TrimPrefix(url, prefix), mclient.GetObjectOptions{})
		require.NoError(t, err)
		body, err := io.ReadAll(obj)
		require.NoError(t, err)
		assert.Equal(t, "jpeg-content", string(body))
	})

	t.Run("public url used when set", func(t *testing.T) {
		c := cfg
		c.Endpoint = "http://" + minioC.Endpoint
		c.PublicURL = "http://cdn.local/media/"
		u, err := New(t.Context(), c)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "avatar.png")
		require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))

		url, err := u.Upload(t.Context(), path)

		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(url, "http://cdn.local/media/"), "got %s", url)
		assert.NotContains(t, url, "media//")
	})

	t.Run("missing file fails", func(t *testing.T) {
		u, err := New(t.Context(), cfg)
		require.NoError(t, err)

		_, err = u.Upload(t.Context(), filepath.Join(t.TempDir(), "nope.png"))

		assert.Error(t, err)
	})
}
