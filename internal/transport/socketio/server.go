// Package socketio provides the Socket.io status server: clients receive the
// cached player state and may send control commands to the remote player.
package socketio

import (
	"encoding/json"
	"net/http"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/beebridge/internal/domain/controls"
)

const (
	// DefaultBroadcastWindow coalesces state changes into one broadcast.
	DefaultBroadcastWindow = 50 * time.Millisecond

	// DefaultMaxExternalClients bounds non-local connections.
	DefaultMaxExternalClients = 4
)

// StateSource provides the state pushed to clients. *player.State
// implements it.
type StateSource interface {
	ToJSON() map[string]interface{}
}

// Commander accepts control commands. *controls.Bridge implements it.
type Commander interface {
	Submit(controls.Command) bool
}

// stateCompareKeys are the fields whose change triggers a broadcast. Seek
// is left out: clients interpolate it while playing.
var stateCompareKeys = []string{
	"status", "title", "artist", "album", "albumart", "duration", "volume", "activated",
}

// Option configures a Server.
type Option func(*Server)

// WithMaxExternalClients caps non-loopback clients. Zero or less admits
// loopback clients only.
func WithMaxExternalClients(n int) Option {
	return func(s *Server) { s.maxExternal = n }
}

// WithAllowedOrigins restricts the browser origins allowed to connect.
// "*" allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// Server handles Socket.io connections and events.
type Server struct {
	io          *socket.Server
	state       StateSource
	commander   Commander
	limiter     *ClientLimiter
	debouncer   *BroadcastDebouncer
	maxExternal int
	origins     []string

	mu        sync.RWMutex
	clients   map[string]*socket.Socket
	lastState map[string]interface{}
}

// NewServer creates a new Socket.io server.
func NewServer(state StateSource, commander Commander, options ...Option) (*Server, error) {
	s := &Server{
		state:       state,
		commander:   commander,
		maxExternal: DefaultMaxExternalClients,
		origins:     []string{"*"},
		clients:     make(map[string]*socket.Socket),
	}
	for _, o := range options {
		o(s)
	}

	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(corsFor(s.origins))

	s.io = socket.NewServer(nil, opts)
	s.limiter = NewClientLimiter(s.maxExternal)
	s.debouncer = NewBroadcastDebouncer(DefaultBroadcastWindow, s.broadcastIfChanged)

	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		remote := client.Handshake().Address

		ok, replaced := s.limiter.Admit(clientID, remote)
		if !ok {
			log.Warn().
				Str("component", "status").
				Str("id", clientID).
				Str("remote", remote).
				Int("max_external_clients", s.maxExternal).
				Msg("Refusing external status client")
			client.Disconnect(true)
			return
		}
		log.Info().Str("component", "status").Str("id", clientID).Str("remote", remote).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		old := s.clients[replaced]
		delete(s.clients, replaced)
		s.mu.Unlock()

		if old != nil {
			log.Info().
				Str("component", "status").
				Str("id", replaced).
				Str("remote", remote).
				Msg("Client replaced by a newer connection from the same host")
			old.Disconnect(true)
		}

		s.pushState(client)

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.limiter.Release(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On("getState", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getState")
			s.pushState(client)
		})

		for _, event := range controlEvents {
			event := event
			client.On(event, func(args ...any) {
				s.handleControl(clientID, event, args)
			})
		}
	})
}

func (s *Server) handleControl(clientID, event string, args []any) {
	cmd, ok := commandFor(event, args)
	if !ok {
		log.Debug().Str("id", clientID).Str("event", event).Interface("data", args).Msg("Ignoring malformed control event")
		return
	}
	log.Debug().Str("id", clientID).Str("action", cmd.Kind.String()).Msg("Control event")
	if !s.commander.Submit(cmd) {
		log.Warn().Str("action", cmd.Kind.String()).Msg("Command queue full, dropping control event")
	}
}

// pushState sends current state to a client.
func (s *Server) pushState(client *socket.Socket) {
	client.Emit("pushState", s.state.ToJSON())
}

// Notify schedules a state broadcast. Bursts collapse into one.
func (s *Server) Notify() {
	s.debouncer.Trigger()
}

// BroadcastState sends state to all connected clients.
func (s *Server) BroadcastState() {
	state := s.state.ToJSON()
	s.saveLastState(state)
	s.io.Emit("pushState", state)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(state)
		s.mu.RLock()
		clientCount := len(s.clients)
		s.mu.RUnlock()
		log.Debug().RawJSON("state", data).Int("clients", clientCount).Msg("Broadcast state")
	}
}

func (s *Server) broadcastIfChanged() {
	if s.isStateSame(s.state.ToJSON()) {
		return
	}
	s.BroadcastState()
}

func (s *Server) saveLastState(state map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastState = state
}

// isStateSame reports whether state matches the last broadcast on every
// compared key.
func (s *Server) isStateSame(state map[string]interface{}) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastState == nil {
		return false
	}
	for _, key := range stateCompareKeys {
		if !reflect.DeepEqual(s.lastState[key], state[key]) {
			return false
		}
	}
	return true
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.io server.
func (s *Server) Close() error {
	s.debouncer.Stop()
	s.io.Close(nil)
	return nil
}

// corsFor builds the handshake CORS policy.
func corsFor(origins []string) *types.Cors {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return &types.Cors{Origin: "*"}
	}
	allowed := make([]any, len(origins))
	for i, o := range origins {
		allowed[i] = o
	}
	return &types.Cors{Origin: allowed, Credentials: true}
}
