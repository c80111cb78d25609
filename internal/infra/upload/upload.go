// Package upload publishes local cover images on public image hosts so that
// remote presence services can display them.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	// DefaultTimeout for upload requests
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize bounds response bodies read from hosts.
	MaxResponseSize = 64 * 1024
)

// Service names accepted by New.
const (
	ServiceLitterbox = "litterbox"
	ServiceImgur     = "imgur"
)

var (
	// ErrUnknownService is returned by New for an unsupported service name.
	ErrUnknownService = errors.New("unknown upload service")

	// ErrRejected is returned when the host answers but refuses the upload.
	ErrRejected = errors.New("upload rejected")
)

// Result describes an uploaded image.
type Result struct {
	URL        string
	DeleteHash string    // empty when the host does not support deletion
	ExpiresAt  time.Time // zero when the link does not expire
}

// Service uploads images to one host.
type Service interface {
	Name() string
	Upload(ctx context.Context, filename, mimeType string, data []byte) (*Result, error)
	// Delete removes an upload by its delete hash. Hosts without deletion
	// return nil.
	Delete(ctx context.Context, deleteHash string) error
	// NeedsDeleting reports whether uploads should be removed when the
	// presence session ends.
	NeedsDeleting() bool
}

// Option configures an upload service.
type Option func(*client)

type client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	now        func() time.Time
}

// WithBaseURL sets a custom API URL (useful for testing)
func WithBaseURL(url string) Option {
	return func(c *client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithClientID sets the API client id for hosts that need one.
func WithClientID(id string) Option {
	return func(c *client) {
		c.clientID = id
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithClock sets the time source used for expiry stamps.
func WithClock(now func() time.Time) Option {
	return func(c *client) {
		c.now = now
	}
}

func newClient(baseURL string, opts []Option) client {
	c := client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// New creates the service with the given name.
func New(name string, opts ...Option) (Service, error) {
	switch strings.ToLower(name) {
	case ServiceLitterbox, "":
		return NewLitterbox(opts...), nil
	case ServiceImgur:
		return NewImgur(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
}

// multipartBody builds a form with the given text fields and one file part.
func multipartBody(fields map[string]string, fileField, filename, mimeType string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, filename))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
