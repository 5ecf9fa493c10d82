package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nkiryanov/videotube/internal/handlers/render"
	"github.com/nkiryanov/videotube/internal/logger"
)

const (
	maxUploadSize   = 10 << 20 // whole multipart body
	maxUploadMemory = 1 << 20  // parts above are spooled to disk by net/http
)

// Parse multipart body and create per-request directory for uploaded files
// Returned cleanup removes the directory and everything left in it
// On failure the error response is already written
func parseMultipart(w http.ResponseWriter, r *http.Request, uploadDir string, l logger.Logger) (string, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		render.ServiceError(w, "Failed to parse multipart form", http.StatusBadRequest)
		return "", nil, false
	}

	dir, err := os.MkdirTemp(uploadDir, "upload-")
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		l.Error("Failed to create upload dir", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return "", nil, false
	}

	cleanup := func() {
		_ = r.MultipartForm.RemoveAll()
		_ = os.RemoveAll(dir)
	}
	return dir, cleanup, true
}

// Save form file to dir and return its path. Missing file is not an error: path is empty
func saveFormFile(r *http.Request, field string, dir string) (string, error) {
	file, header, err := r.FormFile(field)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return "", nil
	case err != nil:
		return "", err
	}
	defer func() { _ = file.Close() }()

	// Client file name is not trusted, only its extension is kept
	path := filepath.Join(dir, field+strings.ToLower(filepath.Ext(header.Filename)))

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, file); err != nil {
		return "", err
	}

	return path, nil
}
