// Package web serves the embedded marketing and confirmation pages.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed dist
var staticFiles embed.FS

// GetFileSystem returns the embedded filesystem with the dist folder as root.
func GetFileSystem() (fs.FS, error) {
	return fs.Sub(staticFiles, "dist")
}

// RegisterStaticRoutes serves the site for every path the API does not
// claim. Unknown pages fall back to index.html. Register API routes first.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := GetFileSystem()
	if err != nil {
		return err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	e.GET("/*", func(c echo.Context) error {
		p := strings.TrimPrefix(path.Clean(c.Request().URL.Path), "/")
		if p == "" || p == "." {
			return serveFile(c, staticFS, "index.html")
		}
		if strings.HasPrefix(p, "api/") {
			return echo.ErrNotFound
		}

		stat, err := fs.Stat(staticFS, p)
		switch {
		case err != nil:
			return serveFile(c, staticFS, "index.html")
		case stat.IsDir():
			if _, err := fs.Stat(staticFS, path.Join(p, "index.html")); err != nil {
				return serveFile(c, staticFS, "index.html")
			}
			return serveFile(c, staticFS, path.Join(p, "index.html"))
		}

		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	})
	return nil
}

func serveFile(c echo.Context, staticFS fs.FS, name string) error {
	content, err := fs.ReadFile(staticFS, name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, name+" not found")
	}
	return c.HTMLBlob(http.StatusOK, content)
}

// HasEmbeddedFiles reports whether the site was embedded at build time.
func HasEmbeddedFiles() bool {
	_, err := fs.Stat(staticFiles, "dist/index.html")
	return err == nil
}
