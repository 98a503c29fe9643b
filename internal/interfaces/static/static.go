package static

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/gin-gonic/gin"

	"speech-relay/internal/infrastructure/logger"
)

var ErrNotFound = errors.New("not found")

// Mount maps a URL route to a file or directory under the static root.
type Mount struct {
	Route string
	Path  string
	Dir   bool
}

// DefaultMounts is the fixed map served by the relay.
func DefaultMounts() []Mount {
	return []Mount{
		{Route: "/", Path: "index.html"},
		{Route: "/test", Path: "test.html"},
		{Route: "/src", Path: "src", Dir: true},
	}
}

type Handler struct {
	root   string
	mounts []Mount
	logger logger.Logger
}

func NewHandler(root string, logger logger.Logger, mounts ...Mount) *Handler {
	if len(mounts) == 0 {
		mounts = DefaultMounts()
	}
	return &Handler{
		root:   root,
		mounts: mounts,
		logger: logger.WithField("handler", "static"),
	}
}

// Resolve maps a request path to a regular file on disk. Paths outside the
// map, directories and files escaping a mount all yield ErrNotFound.
func (h *Handler) Resolve(requestPath string) (string, error) {
	clean := path.Clean("/" + requestPath)

	for _, m := range h.mounts {
		var file string
		switch {
		case !m.Dir && clean == m.Route:
			file = filepath.Join(h.root, filepath.FromSlash(m.Path))
		case m.Dir && strings.HasPrefix(clean, m.Route+"/"):
			rel := strings.TrimPrefix(clean, m.Route+"/")
			joined, err := securejoin.SecureJoin(filepath.Join(h.root, filepath.FromSlash(m.Path)), rel)
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrNotFound, err)
			}
			file = joined
		default:
			continue
		}

		info, err := os.Stat(file)
		if err != nil || info.IsDir() {
			return "", ErrNotFound
		}
		return file, nil
	}

	return "", ErrNotFound
}

// Register adds a GET route per mount to rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	for _, m := range h.mounts {
		if m.Dir {
			rg.GET(m.Route+"/*filepath", h.serve)
			continue
		}
		rg.GET(m.Route, h.serve)
	}
}

func (h *Handler) serve(c *gin.Context) {
	file, err := h.Resolve(c.Request.URL.Path)
	if err != nil {
		h.logger.Debugf("Static lookup %s: %v", c.Request.URL.Path, err)
		NotFound(c)
		return
	}

	// http.ServeFile would redirect .../index.html, so serve the bytes directly
	f, err := os.Open(file)
	if err != nil {
		NotFound(c)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		NotFound(c)
		return
	}
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}

// NotFound is the JSON 404 used for every unmapped path.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}
