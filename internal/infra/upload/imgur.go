package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultImgurURL is the Imgur API base URL.
	DefaultImgurURL = "https://api.imgur.com/3"

	// DefaultImgurClientID is the anonymous application id used for uploads.
	DefaultImgurClientID = "0ce559de0c8a293"
)

// Imgur uploads anonymously to imgur.com. Links never expire, so uploads are
// deleted with their delete hash when no longer shown.
type Imgur struct {
	client
}

type imgurResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		Link       string          `json:"link"`
		DeleteHash string          `json:"deletehash"`
		Error      json.RawMessage `json:"error"`
	} `json:"data"`
}

// NewImgur creates an Imgur uploader.
func NewImgur(opts ...Option) *Imgur {
	c := newClient(DefaultImgurURL, opts)
	if c.clientID == "" {
		c.clientID = DefaultImgurClientID
	}
	return &Imgur{client: c}
}

// Name returns the service name.
func (i *Imgur) Name() string { return ServiceImgur }

// NeedsDeleting is true: Imgur keeps uploads forever.
func (i *Imgur) NeedsDeleting() bool { return true }

// Upload posts the image and returns its link and delete hash.
func (i *Imgur) Upload(ctx context.Context, filename, mimeType string, data []byte) (*Result, error) {
	body, contentType, err := multipartBody(nil, "image", filename, mimeType, data)
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+"/upload", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Client-ID "+i.clientID)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var ir imgurResponse
	if err := json.Unmarshal(raw, &ir); err != nil {
		return nil, fmt.Errorf("%w: imgur status %d: malformed response", ErrRejected, resp.StatusCode)
	}
	if !ir.Success {
		return nil, fmt.Errorf("%w: imgur status %d: %s", ErrRejected, ir.Status, string(ir.Data.Error))
	}
	if ir.Data.Link == "" || ir.Data.DeleteHash == "" {
		return nil, fmt.Errorf("%w: imgur response without link or delete hash", ErrRejected)
	}

	log.Debug().Str("file", filename).Str("url", ir.Data.Link).Msg("Uploaded cover to imgur")

	return &Result{URL: ir.Data.Link, DeleteHash: ir.Data.DeleteHash}, nil
}

// Delete removes an upload.
func (i *Imgur) Delete(ctx context.Context, deleteHash string) error {
	if deleteHash == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, i.baseURL+"/image/"+deleteHash, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+i.clientID)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotFound:
		// Gone either way
		return nil
	default:
		return fmt.Errorf("%w: imgur delete status %d", ErrRejected, resp.StatusCode)
	}
}
