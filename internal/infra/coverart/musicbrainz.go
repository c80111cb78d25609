package coverart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// Release match thresholds on the MusicBrainz search score (0-100).
const (
	confidentScore = 80
	minimumScore   = 50
)

type mbRelease struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Score int    `json:"score"`
}

type mbSearchResponse struct {
	Releases []mbRelease `json:"releases"`
}

// searchRelease returns the best matching release MBID, or "" when nothing
// matches well enough.
func (f *Finder) searchRelease(ctx context.Context, artist, album string) (string, error) {
	query := fmt.Sprintf(`artist:"%s" AND release:"%s"`, escapeQuery(artist), escapeQuery(album))
	reqURL := fmt.Sprintf("%s/release?query=%s&fmt=json&limit=5", f.mbURL, url.QueryEscape(query))

	resp, err := f.get(ctx, reqURL)
	if err != nil {
		return "", fmt.Errorf("search release: %w", err)
	}
	defer resp.Body.Close()

	var search mbSearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&search); err != nil {
		return "", fmt.Errorf("parse release search: %w", err)
	}
	if len(search.Releases) == 0 {
		return "", nil
	}

	// Results are ordered by score
	for _, r := range search.Releases {
		if r.Score >= confidentScore {
			return r.ID, nil
		}
	}
	if best := search.Releases[0]; best.Score > minimumScore {
		log.Debug().
			Str("artist", artist).
			Str("album", album).
			Int("score", best.Score).
			Msg("Using lower confidence release match")
		return best.ID, nil
	}
	return "", nil
}

// escapeQuery escapes special characters in Lucene query.
func escapeQuery(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		`+`, `\+`,
		`-`, `\-`,
		`!`, `\!`,
		`(`, `\(`,
		`)`, `\)`,
		`{`, `\{`,
		`}`, `\}`,
		`[`, `\[`,
		`]`, `\]`,
		`^`, `\^`,
		`~`, `\~`,
		`*`, `\*`,
		`?`, `\?`,
		`:`, `\:`,
		`/`, `\/`,
	)
	return replacer.Replace(s)
}
