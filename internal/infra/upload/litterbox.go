package upload

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultLitterboxURL is the Litterbox upload endpoint.
	DefaultLitterboxURL = "https://litterbox.catbox.moe/resources/internals/api.php"

	// LitterboxLifetime is how long Litterbox keeps an upload.
	LitterboxLifetime = 12 * time.Hour
)

// Litterbox uploads to litterbox.catbox.moe. Links expire on their own and
// cannot be deleted.
type Litterbox struct {
	client
}

// NewLitterbox creates a Litterbox uploader.
func NewLitterbox(opts ...Option) *Litterbox {
	return &Litterbox{client: newClient(DefaultLitterboxURL, opts)}
}

// Name returns the service name.
func (l *Litterbox) Name() string { return ServiceLitterbox }

// NeedsDeleting is false: uploads expire.
func (l *Litterbox) NeedsDeleting() bool { return false }

// Delete is a no-op.
func (l *Litterbox) Delete(context.Context, string) error { return nil }

// Upload posts the image and returns its temporary URL.
func (l *Litterbox) Upload(ctx context.Context, filename, mimeType string, data []byte) (*Result, error) {
	fields := map[string]string{
		"reqtype": "fileupload",
		"time":    fmt.Sprintf("%dh", int(LitterboxLifetime.Hours())),
	}
	body, contentType, err := multipartBody(fields, "fileToUpload", filename, mimeType, data)
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	// Stamp before sending so the cached expiry never outlives the link.
	started := l.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	text, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: litterbox status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(text)))
	}

	link := strings.TrimSpace(string(text))
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: unexpected litterbox response %q", ErrRejected, link)
	}

	log.Debug().Str("file", filename).Str("url", link).Msg("Uploaded cover to litterbox")

	return &Result{URL: link, ExpiresAt: started.Add(LitterboxLifetime)}, nil
}
