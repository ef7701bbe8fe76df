// Package static embeds and serves frontend assets (CSS, JS, logos).
package static

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed css/*.css js/*.js logos/*.svg
var assets embed.FS

// FS exposes the embedded static assets.
func FS() fs.FS {
	return assets
}

// HTTP returns an http.FileSystem backed by the embedded assets.
func HTTP() http.FileSystem {
	return http.FS(assets)
}

// Has reports whether the given relative path exists in the embedded assets.
func Has(name string) bool {
	name = strings.TrimPrefix(name, "/")
	f, err := assets.Open(name)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// ReadFile returns the contents of an embedded asset such as "logos/rox-horizontal.svg".
func ReadFile(name string) ([]byte, error) {
	return assets.ReadFile(strings.TrimPrefix(name, "/"))
}
