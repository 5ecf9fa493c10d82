package minio

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"

	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nkiryanov/videotube/internal/media"
)

type Config struct {
	Endpoint  string // host:port or url with scheme
	AccessKey string
	SecretKey string
	Bucket    string

	// Base of returned urls. If empty, objects are addressed at the endpoint directly
	PublicURL string
}

// Uploader puts files to S3 compatible storage
type Uploader struct {
	client    *mclient.Client
	bucket    string
	publicURL string
}

// Create client and check the bucket exists
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	const op = "media/minio/New"

	endpoint := cfg.Endpoint
	secure := false
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := mclient.New(endpoint, &mclient.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return nil, fmt.Errorf("%s: bucket %q does not exist", op, cfg.Bucket)
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, endpoint, cfg.Bucket)
	}

	return &Uploader{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	const op = "media/minio/Upload"

	defer os.Remove(localPath) // nolint:errcheck

	name := media.ObjectName(localPath)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := u.client.FPutObject(ctx, u.bucket, name, localPath, mclient.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return media.PublicURL(u.publicURL, name), nil
}

var _ media.Uploader = (*Uploader)(nil)
