// Package artwork resolves cover art referenced by track metadata into a
// local file or a public URL, and prepares local covers for upload.
package artwork

import "errors"

// ErrNoArtwork is returned when no artwork is found.
var ErrNoArtwork = errors.New("no artwork found")

// Sources of a resolved cover.
const (
	SourceURL         = "url"         // already public
	SourceFile        = "file"        // the referenced file exists
	SourceFolder      = "folder"      // found next to the referenced file
	SourcePlaceholder = "placeholder" // nothing usable
)

// ResolveResult contains the result of artwork resolution.
type ResolveResult struct {
	FilePath string // Local file, empty for URLs and placeholders
	URL      string // Public URL, or a file:// URL for local files
	Source   string
}

// Local reports whether the cover is a file on this machine.
func (r ResolveResult) Local() bool { return r.FilePath != "" }

// Found reports whether any cover was resolved.
func (r ResolveResult) Found() bool { return r.Source != SourcePlaceholder }
