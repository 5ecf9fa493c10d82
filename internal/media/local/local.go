package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nkiryanov/videotube/internal/media"
)

// Uploader keeps files in a directory served by the app itself
// Used for development when no S3 endpoint configured
type Uploader struct {
	dir     string
	baseURL string
}

func New(dir string, baseURL string) (*Uploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media/local/New: %w", err)
	}
	return &Uploader{dir: dir, baseURL: baseURL}, nil
}

// Directory the files are stored in
func (u *Uploader) Dir() string {
	return u.dir
}

func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	const op = "media/local/Upload"

	defer os.Remove(localPath) // nolint:errcheck

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer src.Close() // nolint:errcheck

	name := media.ObjectName(localPath)
	dst, err := os.Create(filepath.Join(u.dir, name))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return media.PublicURL(u.baseURL, name), nil
}

var _ media.Uploader = (*Uploader)(nil)
