package artwork

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFilesystemFinder_FindArtwork_CoverInSameDir(t *testing.T) {
	tmpDir := t.TempDir()
	musicDir := filepath.Join(tmpDir, "music")
	albumDir := filepath.Join(musicDir, "Artist", "Album")

	coverPath := filepath.Join(albumDir, "cover.jpg")
	writeFile(t, coverPath, "fake image data")

	finder := NewFilesystemFinder(musicDir)
	result := finder.FindArtwork(filepath.Join(albumDir, "missing.jpg"))

	if result != coverPath {
		t.Errorf("Expected %s, got %s", coverPath, result)
	}
}

func TestFilesystemFinder_FindArtwork_CoverInParentDir(t *testing.T) {
	// Album/cover.jpg
	// Album/CD1/<missing cover>
	tmpDir := t.TempDir()
	musicDir := filepath.Join(tmpDir, "music")
	albumDir := filepath.Join(musicDir, "Artist", "Album")
	subDir := filepath.Join(albumDir, "CD1")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	coverPath := filepath.Join(albumDir, "cover.jpg")
	writeFile(t, coverPath, "fake image data")

	finder := NewFilesystemFinder(musicDir)
	result := finder.FindArtwork(filepath.Join(subDir, "folder.jpg"))

	if result != coverPath {
		t.Errorf("Expected %s, got %s", coverPath, result)
	}
}

func TestFilesystemFinder_FindArtwork_AlternateFilenames(t *testing.T) {
	testCases := []struct {
		name     string
		filename string
	}{
		{"folder.jpg", "folder.jpg"},
		{"front.png", "front.png"},
		{"album.webp", "album.webp"},
		{"artwork.jpeg", "artwork.jpeg"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			musicDir := filepath.Join(tmpDir, "music")
			albumDir := filepath.Join(musicDir, "Artist", "Album")

			coverPath := filepath.Join(albumDir, tc.filename)
			writeFile(t, coverPath, "fake image data")

			finder := NewFilesystemFinder(musicDir)
			result := finder.FindArtwork(filepath.Join(albumDir, "gone.png"))

			if result != coverPath {
				t.Errorf("Expected %s, got %s", coverPath, result)
			}
		})
	}
}

func TestFilesystemFinder_FindArtwork_PriorityOrder(t *testing.T) {
	tmpDir := t.TempDir()
	musicDir := filepath.Join(tmpDir, "music")
	albumDir := filepath.Join(musicDir, "Artist", "Album")

	coverPath := filepath.Join(albumDir, "cover.jpg")
	writeFile(t, coverPath, "cover data")
	writeFile(t, filepath.Join(albumDir, "folder.jpg"), "folder data")

	finder := NewFilesystemFinder(musicDir)
	result := finder.FindArtwork(filepath.Join(albumDir, "missing.jpg"))

	// cover.jpg should be preferred
	if result != coverPath {
		t.Errorf("Expected cover.jpg to be preferred, got %s", result)
	}
}

func TestFilesystemFinder_FindArtwork_AnyImageFallback(t *testing.T) {
	tmpDir := t.TempDir()
	musicDir := filepath.Join(tmpDir, "music")
	albumDir := filepath.Join(musicDir, "Artist", "Album")

	imagePath := filepath.Join(albumDir, "FR741.jpg")
	writeFile(t, imagePath, "fake image data")
	writeFile(t, filepath.Join(albumDir, "._FR741.jpg"), "resource fork")

	finder := NewFilesystemFinder(musicDir)
	result := finder.FindArtwork(filepath.Join(albumDir, "missing.jpg"))

	if result != imagePath {
		t.Errorf("Expected %s, got %s", imagePath, result)
	}
}

func TestFilesystemFinder_FindArtwork_NoArtwork(t *testing.T) {
	tmpDir := t.TempDir()
	musicDir := filepath.Join(tmpDir, "music")
	albumDir := filepath.Join(musicDir, "Artist", "Album")
	writeFile(t, filepath.Join(albumDir, "01-track.flac"), "fake audio data")

	finder := NewFilesystemFinder(musicDir)
	if result := finder.FindArtwork(filepath.Join(albumDir, "missing.jpg")); result != "" {
		t.Errorf("Expected empty result for no artwork, got %s", result)
	}
}

func TestFilesystemFinder_FindArtwork_DoesNotSearchOutsideMusicDir(t *testing.T) {
	tmpDir := t.TempDir()
	musicDir := filepath.Join(tmpDir, "music")
	albumDir := filepath.Join(musicDir, "Album")
	if err := os.MkdirAll(albumDir, 0755); err != nil {
		t.Fatal(err)
	}

	// Put cover.jpg OUTSIDE music directory
	writeFile(t, filepath.Join(tmpDir, "cover.jpg"), "outside cover")

	finder := NewFilesystemFinder(musicDir)
	if result := finder.FindArtwork(filepath.Join(albumDir, "missing.jpg")); result != "" {
		t.Errorf("Should not search outside music directory, got %s", result)
	}
}

func TestFilesystemFinder_FindArtwork_TempDirOutsideMusicDir(t *testing.T) {
	tmpDir := t.TempDir()
	musicDir := filepath.Join(tmpDir, "music")
	tempDir := filepath.Join(tmpDir, "drive_c", "Temp")
	writeFile(t, filepath.Join(tempDir, "other-track.png"), "unrelated")

	finder := NewFilesystemFinder(musicDir)
	if result := finder.FindArtwork(filepath.Join(tempDir, "cover.tmp")); result != "" {
		t.Errorf("Should not pick unrelated temp images, got %s", result)
	}
}

func TestFilesystemFinder_EmptyPath(t *testing.T) {
	finder := NewFilesystemFinder("/tmp")
	if result := finder.FindArtwork(""); result != "" {
		t.Errorf("Expected empty result for empty path, got %s", result)
	}
}
