// Package media hosts uploaded images and returns their public URLs
package media

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

//go:generate mockgen -destination=../../mocks/mock_media.go -package=mocks github.com/nkiryanov/videotube/internal/media Uploader

type Uploader interface {
	// Upload file stored at localPath and return its hosted url
	// The local file is removed afterwards whatever the result is
	Upload(ctx context.Context, localPath string) (string, error)
}

// Unique object name keeping the extension of the uploaded file
func ObjectName(localPath string) string {
	ext := strings.ToLower(filepath.Ext(localPath))
	return uuid.NewString() + ext
}

// Join base url and object name with exactly one slash
func PublicURL(baseURL string, name string) string {
	return strings.TrimRight(baseURL, "/") + "/" + name
}
