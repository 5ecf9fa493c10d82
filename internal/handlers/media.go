package handlers

import (
	"net/http"
	"os"
)

// File system that hides directories, so stored objects can't be listed
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

func handleMedia(dir string) http.Handler {
	return http.StripPrefix("/media/", http.FileServer(filesOnly{fs: http.Dir(dir)}))
}
