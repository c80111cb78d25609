// Package remote starts the remote player executable with command-line
// switches and detects whether its process is still running.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single remote command.
const DefaultTimeout = 30 * time.Second

// ErrNotConfigured is returned when no wine command or player is set.
var ErrNotConfigured = errors.New("remote command not configured")

// Runner runs `<wine> <player> <args...>` with WINEPREFIX set.
type Runner struct {
	wine    []string
	prefix  string
	player  string
	timeout time.Duration
}

// NewRunner creates a runner. wineCommand may contain arguments, e.g.
// "flatpak run org.winehq.Wine".
func NewRunner(wineCommand, winePrefix, playerLocation string) *Runner {
	return &Runner{
		wine:    strings.Fields(wineCommand),
		prefix:  winePrefix,
		player:  playerLocation,
		timeout: DefaultTimeout,
	}
}

// Run executes the remote player with args and waits for it to exit.
func (r *Runner) Run(ctx context.Context, args ...string) error {
	if len(r.wine) == 0 || r.player == "" {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	argv := append(append(append([]string{}, r.wine[1:]...), r.player), args...)
	cmd := exec.CommandContext(ctx, r.wine[0], argv...)
	cmd.Env = append(os.Environ(), "WINEPREFIX="+r.prefix)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug().
		Str("prefix", r.prefix).
		Str("command", r.wine[0]).
		Strs("args", argv).
		Msg("Running remote command")

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("run %s %s: %w: %s", r.player, strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("run %s %s: %w", r.player, strings.Join(args, " "), err)
	}
	return nil
}
