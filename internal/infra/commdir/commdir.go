// Package commdir reads and writes the protocol files in the communication
// directory shared with the remote player.
package commdir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/beebridge/internal/domain/protocol"
)

// DefaultRetryDelays is the backoff between read attempts.
var DefaultRetryDelays = []time.Duration{
	20 * time.Millisecond,
	40 * time.Millisecond,
	80 * time.Millisecond,
}

// Dir is the communication directory.
type Dir struct {
	root        string
	retryDelays []time.Duration
}

// New returns a Dir rooted at path.
func New(path string) *Dir {
	return &Dir{root: path, retryDelays: DefaultRetryDelays}
}

// SetRetryDelays replaces the read backoff schedule.
func (d *Dir) SetRetryDelays(delays []time.Duration) {
	d.retryDelays = delays
}

// Root returns the directory path.
func (d *Dir) Root() string { return d.root }

// Path returns the full path of a protocol file.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, name)
}

// EnsureLayout creates the directory and every protocol file that is missing.
// Existing content is left untouched. A fresh activation file reads "false".
// Errors are collected per file so one bad file does not stop the others.
func (d *Dir) EnsureLayout() error {
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return fmt.Errorf("create communication directory: %w", err)
	}

	var errs []error
	for _, name := range protocol.Files {
		created, err := touch(d.Path(name))
		if err != nil {
			errs = append(errs, fmt.Errorf("create %s: %w", name, err))
			continue
		}
		if created {
			log.Debug().Str("file", name).Msg("Created protocol file")
		}
	}

	if err := d.ensureActivation(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Dir) ensureActivation() error {
	info, err := os.Stat(d.Path(protocol.ActivationFile))
	if err != nil || info.Size() > 0 {
		return nil
	}
	return d.WriteFile(protocol.ActivationFile, protocol.EncodeActivation(false))
}

func touch(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, f.Close()
}

// ReadFile reads a protocol file, retrying transient failures with backoff.
func (d *Dir) ReadFile(ctx context.Context, name string) (string, error) {
	path := d.Path(name)

	var err error
	for attempt := 0; ; attempt++ {
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			return string(data), nil
		}
		if !isTransient(err) || attempt >= len(d.retryDelays) {
			break
		}

		log.Warn().Err(err).Str("file", name).Int("attempt", attempt+1).Msg("Transient read failure, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d.retryDelays[attempt]):
		}
	}
	return "", fmt.Errorf("read %s: %w", name, err)
}

func isTransient(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EINTR)
}

// WriteFile atomically replaces a protocol file.
func (d *Dir) WriteFile(name, content string) error {
	pendingFile, err := renameio.NewPendingFile(d.Path(name), renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending %s file: %w", name, err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			log.Debug().Err(err).Str("file", name).Msg("Cleanup pending file")
		}
	}()

	if _, err := pendingFile.WriteString(content); err != nil {
		return fmt.Errorf("write %s data: %w", name, err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s file: %w", name, err)
	}
	return nil
}

// WriteActivation writes the activation flag.
func (d *Dir) WriteActivation(active bool) error {
	return d.WriteFile(protocol.ActivationFile, protocol.EncodeActivation(active))
}
