package api

import (
	"io/fs"
	"net/http"
)

// noListingFS refuses to open directories so http.FileServer never renders an
// index page for a stage directory.
type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

func staticHandler(dir string) http.Handler {
	return http.FileServer(noListingFS{fs: http.Dir(dir)})
}
