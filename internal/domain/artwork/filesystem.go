package artwork

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ArtworkFilenames defines common artwork filenames in priority order.
var ArtworkFilenames = []string{
	"cover",
	"folder",
	"front",
	"album",
	"artwork",
}

// ArtworkExtensions defines supported image extensions.
var ArtworkExtensions = []string{
	".jpg",
	".jpeg",
	".png",
	".webp",
}

// FilesystemFinder searches for artwork files near a missing cover.
type FilesystemFinder struct {
	musicDir  string // local music root; parents above it are never searched
	maxLevels int    // Maximum parent directories to search
}

// NewFilesystemFinder creates a new filesystem artwork finder. With an empty
// musicDir only the cover's own directory is searched.
func NewFilesystemFinder(musicDir string) *FilesystemFinder {
	return &FilesystemFinder{
		musicDir:  musicDir,
		maxLevels: 1,
	}
}

// FindArtwork searches for an artwork file starting from the directory of
// coverPath. Returns the full path if found, empty string otherwise.
func (f *FilesystemFinder) FindArtwork(coverPath string) string {
	if coverPath == "" {
		return ""
	}

	currentDir := filepath.Dir(coverPath)
	levels := 0
	var musicDirAbs string
	if f.musicDir != "" {
		abs, err := filepath.Abs(f.musicDir)
		if err == nil {
			musicDirAbs = abs
			levels = f.maxLevels
		}
	}

	for level := 0; level <= levels; level++ {
		if musicDirAbs != "" {
			currentDirAbs, err := filepath.Abs(currentDir)
			if err != nil || !withinDir(currentDirAbs, musicDirAbs) {
				break // Don't search outside music directory
			}
		}

		if artPath := f.searchDirectory(currentDir); artPath != "" {
			log.Debug().
				Str("artPath", artPath).
				Int("level", level).
				Msg("Found artwork file")
			return artPath
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	return ""
}

func withinDir(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

// searchDirectory searches a single directory for artwork files.
func (f *FilesystemFinder) searchDirectory(dir string) string {
	for _, name := range ArtworkFilenames {
		for _, ext := range ArtworkExtensions {
			candidates := []string{
				name + ext,
				capitalize(name) + ext,
				strings.ToUpper(name) + strings.ToUpper(ext),
			}
			for _, c := range candidates {
				if path := filepath.Join(dir, c); fileExists(path) {
					return path
				}
			}
		}
	}

	// If no standard names found, look for any image file
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), "._") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, validExt := range ArtworkExtensions {
			if ext == validExt {
				return filepath.Join(dir, entry.Name())
			}
		}
	}

	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
