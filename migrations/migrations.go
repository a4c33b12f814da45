// Package migrations embeds the platform registry migrations.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed platform/*.sql
var platformFS embed.FS

// Platform returns the registry migrations rooted at their directory.
func Platform() fs.FS {
	sub, err := fs.Sub(platformFS, "platform")
	if err != nil {
		panic(err)
	}
	return sub
}
