// Package discord is a minimal Discord Rich Presence client speaking the
// desktop client's local IPC protocol.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds each request when the context has no deadline.
const DefaultTimeout = 5 * time.Second

var (
	// ErrNoDiscord is returned when no IPC socket accepts a connection.
	ErrNoDiscord = errors.New("discord is not running")

	// ErrNotConnected is returned by requests made before Connect.
	ErrNotConnected = errors.New("not connected to discord")

	// ErrRemoteClosed is returned when Discord closes the session.
	ErrRemoteClosed = errors.New("discord closed the connection")
)

// subdirectories where sandboxed Discord builds place their socket
var socketSubdirs = []string{"", "app/com.discordapp.Discord", "snap.discord"}

// Client is a Discord IPC connection. It is safe for concurrent use.
type Client struct {
	clientID string
	dirs     []string
	pid      int

	mu   sync.Mutex
	conn net.Conn
}

// Option configures a Client.
type Option func(*Client)

// WithSocketDirs overrides the directories searched for discord-ipc-N.
func WithSocketDirs(dirs ...string) Option {
	return func(c *Client) {
		c.dirs = dirs
	}
}

// NewClient creates a client for the given application id.
func NewClient(clientID string, opts ...Option) *Client {
	c := &Client{
		clientID: clientID,
		dirs:     defaultSocketDirs(),
		pid:      os.Getpid(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultSocketDirs() []string {
	var dirs []string
	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if v := os.Getenv(env); v != "" {
			dirs = append(dirs, v)
		}
	}
	return append(dirs, "/tmp")
}

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect opens the first reachable IPC socket and performs the handshake.
// Connecting while connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	var d net.Dialer
	for _, dir := range c.dirs {
		for _, sub := range socketSubdirs {
			for i := 0; i < 10; i++ {
				path := filepath.Join(dir, sub, "discord-ipc-"+strconv.Itoa(i))
				conn, err := d.DialContext(ctx, "unix", path)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					continue
				}
				if err := c.handshake(ctx, conn); err != nil {
					conn.Close()
					log.Debug().Err(err).Str("socket", path).Msg("Discord handshake failed")
					continue
				}
				c.conn = conn
				log.Info().Str("socket", path).Msg("Connected to Discord")
				return nil
			}
		}
	}
	return ErrNoDiscord
}

func (c *Client) handshake(ctx context.Context, conn net.Conn) error {
	setDeadline(ctx, conn)
	defer conn.SetDeadline(time.Time{})

	if err := writeFrame(conn, OpHandshake, map[string]any{"v": 1, "client_id": c.clientID}); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	resp, err := readResponse(conn)
	if err != nil {
		return err
	}
	if resp.Evt != "READY" {
		return fmt.Errorf("unexpected handshake reply %q", resp.Evt)
	}
	return nil
}

// SetActivity replaces the presence.
func (c *Client) SetActivity(ctx context.Context, a *Activity) error {
	return c.command(ctx, "SET_ACTIVITY", map[string]any{
		"pid":      c.pid,
		"activity": a.sanitized(),
	})
}

// ClearActivity removes the presence.
func (c *Client) ClearActivity(ctx context.Context) error {
	return c.command(ctx, "SET_ACTIVITY", map[string]any{
		"pid":      c.pid,
		"activity": nil,
	})
}

// Close ends the session. Closing a closed client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	// Best effort goodbye
	writeFrame(c.conn, OpClose, map[string]any{})
	err := c.conn.Close()
	c.conn = nil
	return err
}

type response struct {
	Cmd   string          `json:"cmd"`
	Evt   string          `json:"evt"`
	Nonce string          `json:"nonce"`
	Data  json.RawMessage `json:"data"`
}

type errorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) command(ctx context.Context, cmd string, args any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	nonce := uuid.NewString()
	setDeadline(ctx, c.conn)
	defer func() {
		if c.conn != nil {
			c.conn.SetDeadline(time.Time{})
		}
	}()

	payload := map[string]any{"cmd": cmd, "args": args, "nonce": nonce}
	if err := writeFrame(c.conn, OpFrame, payload); err != nil {
		c.drop()
		return fmt.Errorf("send %s: %w", cmd, err)
	}

	for {
		resp, err := readResponse(c.conn)
		if err != nil {
			c.drop()
			return fmt.Errorf("read %s reply: %w", cmd, err)
		}
		if resp.Nonce != nonce {
			// Unrelated dispatch
			continue
		}
		if resp.Evt == "ERROR" {
			var ed errorData
			json.Unmarshal(resp.Data, &ed)
			return fmt.Errorf("discord %s error %d: %s", cmd, ed.Code, ed.Message)
		}
		return nil
	}
}

// drop forgets a broken connection so the next Connect starts over.
func (c *Client) drop() {
	c.conn.Close()
	c.conn = nil
}

// readResponse reads the next data frame, answering pings on the way.
func readResponse(conn net.Conn) (*response, error) {
	for {
		op, data, err := readFrame(conn)
		if err != nil {
			return nil, err
		}
		switch op {
		case OpPing:
			var pong any = json.RawMessage(data)
			if !json.Valid(data) {
				pong = map[string]any{}
			}
			if err := writeFrame(conn, OpPong, pong); err != nil {
				return nil, err
			}
			continue
		case OpClose:
			return nil, ErrRemoteClosed
		case OpFrame:
			var resp response
			if err := json.Unmarshal(data, &resp); err != nil {
				return nil, fmt.Errorf("decode reply: %w", err)
			}
			return &resp, nil
		default:
			continue
		}
	}
}

func setDeadline(ctx context.Context, conn net.Conn) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	conn.SetDeadline(deadline)
}
