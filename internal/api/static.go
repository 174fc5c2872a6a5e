package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// staticHandler serves the built frontend from a directory. Requests for
// paths that do not exist on disk fall back to index.html so client-side
// routing keeps working after a page reload.
type staticHandler struct {
	dir   string
	files http.Handler
}

func newStaticHandler(dir string) *staticHandler {
	return &staticHandler{
		dir:   dir,
		files: http.FileServer(http.Dir(dir)),
	}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}

	if _, err := os.Stat(filepath.Join(h.dir, name)); err != nil {
		// Unknown path: rewrite to the index document.
		r.URL.Path = "/"
	}
	h.files.ServeHTTP(w, r)
}
