// Package lifecycle decides when the daemon attaches to and detaches from the
// host media session, based on the activation flag written by the remote
// player plugin.
package lifecycle

// State is the attachment state.
type State int

// States.
const (
	Detached State = iota
	Attached
)

func (s State) String() string {
	if s == Attached {
		return "attached"
	}
	return "detached"
}

// Event is an input to the manager.
type Event int

// Events.
const (
	// ActivationOn and ActivationOff mirror the plugin-activated file.
	ActivationOn Event = iota
	ActivationOff
	// HostExited reports that the remote player process is gone.
	HostExited
	// PlaybackStopped and PlaybackResumed drive detach_on_stop.
	PlaybackStopped
	PlaybackResumed
)

// Effect is what the orchestrator must do after a decision.
type Effect int

// Effects.
const (
	EffectNone Effect = iota
	// EffectAttach registers the media session and connects presence.
	EffectAttach
	// EffectDetach tears the media session and presence down.
	EffectDetach
	// EffectIdle leaves the last published state in place.
	EffectIdle
	// EffectShutdown stops the daemon.
	EffectShutdown
)

func (e Effect) String() string {
	switch e {
	case EffectAttach:
		return "attach"
	case EffectDetach:
		return "detach"
	case EffectIdle:
		return "idle"
	case EffectShutdown:
		return "shutdown"
	default:
		return "none"
	}
}

// Options are the config switches the manager depends on.
type Options struct {
	DetachOnStop   bool
	ExitWithPlugin bool
}

// Decision is the outcome of applying one event.
type Decision struct {
	From, To State
	Effect   Effect
}

// Transitioned reports whether the state changed.
func (d Decision) Transitioned() bool { return d.From != d.To }

// Manager is the Detached/Attached state machine. Apply is idempotent:
// repeating an event that does not change anything yields EffectNone.
// It is not safe for concurrent use; the orchestrator owns it.
type Manager struct {
	opts      Options
	state     State
	sessionUp bool
}

// NewManager returns a manager in the Detached state.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts}
}

// State returns the current state.
func (m *Manager) State() State { return m.state }

// SessionUp reports whether the media session should currently be registered.
func (m *Manager) SessionUp() bool { return m.sessionUp }

// SetOptions replaces the options, e.g. after a config reload.
func (m *Manager) SetOptions(opts Options) { m.opts = opts }

// Apply feeds one event into the state machine.
func (m *Manager) Apply(ev Event) Decision {
	d := Decision{From: m.state, To: m.state}

	switch ev {
	case ActivationOn:
		if m.state == Attached {
			return d
		}
		m.state = Attached
		m.sessionUp = true
		d.Effect = EffectAttach

	case ActivationOff, HostExited:
		if m.state == Detached {
			return d
		}
		m.state = Detached
		wasUp := m.sessionUp
		m.sessionUp = false
		switch {
		case m.opts.ExitWithPlugin:
			d.Effect = EffectShutdown
		case m.opts.DetachOnStop:
			d.Effect = EffectDetach
		default:
			// Session stays registered with its last state.
			m.sessionUp = wasUp
			d.Effect = EffectIdle
		}

	case PlaybackStopped:
		if m.state != Attached || !m.opts.DetachOnStop || !m.sessionUp {
			return d
		}
		m.sessionUp = false
		d.Effect = EffectDetach

	case PlaybackResumed:
		if m.state != Attached || m.sessionUp {
			return d
		}
		m.sessionUp = true
		d.Effect = EffectAttach
	}

	d.To = m.state
	return d
}
