package server

import (
	stderrors "errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/conneroisu/scriptsmith/internal/build"
	"github.com/conneroisu/scriptsmith/internal/logging"
)

// ArtifactHandler serves the built artifact at "/" and "/<file name>".
// The file is read from disk on every request, so a request that races a
// rebuild sees either the previous or the new artifact.
type ArtifactHandler struct {
	path   string
	name   string
	logger logging.Logger
}

// NewArtifactHandler serves the file at path.
func NewArtifactHandler(path string, logger logging.Logger) *ArtifactHandler {
	return &ArtifactHandler{
		path:   path,
		name:   filepath.Base(path),
		logger: logger.WithComponent("artifact"),
	}
}

// URLPath is the path script managers should install from. A ".user.js"
// suffix makes them offer installation.
func (h *ArtifactHandler) URLPath() string {
	return "/" + h.name
}

func (h *ArtifactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.URL.Path != "/" && r.URL.Path != h.URLPath() {
		textError(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		textError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := os.ReadFile(h.path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			textError(w, "Not found", http.StatusNotFound)
			return
		}
		h.logger.Error(r.Context(), err, "cannot read artifact", "path", h.path)
		textError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	etag := build.ETag(build.ContentHash(data))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/javascript")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(data); err != nil {
		h.logger.Debug(r.Context(), "artifact write interrupted", "error", err.Error())
	}
}

func textError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg + "\n"))
}
