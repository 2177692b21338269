package middleware

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// StaticFileServer serves uploaded receipt files. Receipts are immutable
// once written, so far-future cache headers are safe.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(filepath.Clean(r.URL.Path))
		if name == "." || name == "/" || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}

		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=2592000")
		http.ServeFile(w, r, path)
	})
}
