package coverart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type caaImage struct {
	Front      bool              `json:"front"`
	Image      string            `json:"image"`
	Thumbnails map[string]string `json:"thumbnails"`
}

type caaListing struct {
	Images []caaImage `json:"images"`
}

// thumbnailSizes are tried in order; the full image is the last resort.
var thumbnailSizes = []string{"500", "large", "250", "small"}

// frontCover returns the URL of the release's front image.
func (f *Finder) frontCover(ctx context.Context, mbid string) (string, error) {
	resp, err := f.get(ctx, fmt.Sprintf("%s/release/%s", f.caaURL, mbid))
	if err != nil {
		return "", fmt.Errorf("cover listing: %w", err)
	}
	defer resp.Body.Close()

	var listing caaListing
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&listing); err != nil {
		return "", fmt.Errorf("parse cover listing: %w", err)
	}

	for _, img := range listing.Images {
		if !img.Front {
			continue
		}
		for _, size := range thumbnailSizes {
			if u := img.Thumbnails[size]; u != "" {
				return httpsURL(u), nil
			}
		}
		if img.Image != "" {
			return httpsURL(img.Image), nil
		}
	}
	return "", ErrNotFound
}

// httpsURL upgrades archive links, which are listed with plain http.
func httpsURL(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
