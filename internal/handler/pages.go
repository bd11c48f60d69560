package handler

import (
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
)

// PageHandler serves the static HTML pages. The pages talk to /api themselves.
type PageHandler struct {
	files fs.FS
}

func NewPageHandler(files fs.FS) *PageHandler {
	return &PageHandler{files: files}
}

// Serve returns a handler for one page of the file system.
func (h *PageHandler) Serve(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := fs.ReadFile(h.files, name)
		if err != nil {
			return c.String(http.StatusInternalServerError, "failed to read "+name)
		}
		status := http.StatusOK
		if c.Path() == notFoundPath {
			status = http.StatusNotFound
		}
		return c.HTMLBlob(status, data)
	}
}
