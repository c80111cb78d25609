// Package protocol encodes and decodes the text files exchanged with the
// remote player through the communication directory.
//
// Every file is UTF-8, line delimited. Decoders named Decode* are total: they
// never fail and fall back to defaults. Parse* variants add the line-count gate
// used to reject reads caught in the middle of a write.
package protocol

import (
	"errors"
	"strings"
)

// File names inside the communication directory.
const (
	PlaybackFile   = "playback"
	MetadataFile   = "metadata"
	ActivationFile = "plugin-activated"
	ActionFile     = "action"
	VolumeFile     = "volume"
)

// Files lists every file the daemon creates at startup.
var Files = []string{PlaybackFile, MetadataFile, ActivationFile, ActionFile, VolumeFile}

// ErrIncomplete is returned when a file holds fewer lines than its format
// requires. Partial writes are expected, so callers keep their previous value.
var ErrIncomplete = errors.New("incomplete protocol data")

// splitLines normalises CRLF, drops a single trailing newline and splits.
// An empty (or whitespace-only) text yields no lines.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// line returns the i-th line trimmed of surrounding blanks, or "".
func line(lines []string, i int) string {
	if i >= len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[i])
}
