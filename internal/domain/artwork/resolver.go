package artwork

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Resolver turns the translated artwork reference of a track into a usable
// cover. Resolution order:
//  1. http(s) URLs are used as they are
//  2. The referenced file, if it exists
//  3. The same file with a capital "Folder.jpg", which the remote player
//     sometimes reports in lower case
//  4. Any well-known cover file near it (when folder search is enabled)
//  5. Placeholder
type Resolver struct {
	finder *FilesystemFinder
}

// NewResolver creates a new artwork resolver. A nil finder disables the
// folder search.
func NewResolver(finder *FilesystemFinder) *Resolver {
	return &Resolver{finder: finder}
}

// Resolve never fails; a missing cover yields a placeholder result.
func (r *Resolver) Resolve(ref string) ResolveResult {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ResolveResult{Source: SourcePlaceholder}
	}

	if IsRemoteURL(ref) {
		return ResolveResult{URL: ref, Source: SourceURL}
	}

	path := ref
	if u, err := url.Parse(ref); err == nil && u.Scheme == "file" {
		path = u.Path
	}

	if fileExists(path) {
		return localResult(path, SourceFile)
	}

	if strings.HasSuffix(path, "folder.jpg") {
		capitalized := strings.TrimSuffix(path, "folder.jpg") + "Folder.jpg"
		if fileExists(capitalized) {
			return localResult(capitalized, SourceFile)
		}
	}

	if r.finder != nil {
		if found := r.finder.FindArtwork(path); found != "" {
			return localResult(found, SourceFolder)
		}
	}

	log.Warn().Str("path", path).Msg("Artwork file not found")
	return ResolveResult{Source: SourcePlaceholder}
}

func localResult(path, source string) ResolveResult {
	return ResolveResult{FilePath: path, URL: FileURL(path), Source: source}
}

// IsRemoteURL reports whether ref is an http or https URL.
func IsRemoteURL(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// FileURL returns the file:// URL of a local path.
func FileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// DetectMimeType detects the MIME type from image data magic bytes.
func DetectMimeType(data []byte) string {
	if len(data) < 4 {
		return "application/octet-stream"
	}

	// JPEG: starts with FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}

	// PNG: starts with 89 50 4E 47 0D 0A 1A 0A
	if len(data) >= 8 &&
		data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G' &&
		data[4] == 0x0D && data[5] == 0x0A && data[6] == 0x1A && data[7] == 0x0A {
		return "image/png"
	}

	// GIF: starts with GIF87a or GIF89a
	if data[0] == 'G' && data[1] == 'I' && data[2] == 'F' && data[3] == '8' {
		return "image/gif"
	}

	// WebP: starts with RIFF....WEBP
	if len(data) >= 12 &&
		data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' &&
		data[8] == 'W' && data[9] == 'E' && data[10] == 'B' && data[11] == 'P' {
		return "image/webp"
	}

	return "application/octet-stream"
}

// GetExtensionForMime returns the file extension for a MIME type.
func GetExtensionForMime(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
