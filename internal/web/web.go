// Package web embeds the static frontend assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var staticFS embed.FS

// Assets returns the embedded frontend as a filesystem rooted at
// the static directory.
func Assets() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
