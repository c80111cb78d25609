package protocol

import (
	"strconv"
	"strings"
	"time"
)

// metadataLines is the number of lines in a complete metadata file.
const metadataLines = 5

// TrackMetadata is the content of the metadata file.
// ArtworkPath is in the remote namespace (or a URL) and must be translated
// before any local use.
type TrackMetadata struct {
	Title       string
	Album       string
	Artist      string
	ArtworkPath string
	Duration    time.Duration
}

// IsZero reports whether no field is set.
func (m TrackMetadata) IsZero() bool {
	return m == TrackMetadata{}
}

// DecodeMetadata decodes the metadata file. Missing lines become "" and an
// unparsable duration becomes 0. It never fails.
func DecodeMetadata(text string) TrackMetadata {
	lines := splitLines(text)
	return TrackMetadata{
		Title:       line(lines, 0),
		Album:       line(lines, 1),
		Artist:      line(lines, 2),
		ArtworkPath: line(lines, 3),
		Duration:    seconds(line(lines, 4)),
	}
}

// ParseMetadata is DecodeMetadata guarded by the five-line requirement.
func ParseMetadata(text string) (TrackMetadata, error) {
	if len(splitLines(text)) < metadataLines {
		return TrackMetadata{}, ErrIncomplete
	}
	return DecodeMetadata(text), nil
}

// EncodeMetadata renders TrackMetadata in the wire format.
func EncodeMetadata(m TrackMetadata) string {
	var b strings.Builder
	for _, s := range []string{m.Title, m.Album, m.Artist, m.ArtworkPath} {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	b.WriteString(strconv.Itoa(int(m.Duration / time.Second)))
	b.WriteByte('\n')
	return b.String()
}
