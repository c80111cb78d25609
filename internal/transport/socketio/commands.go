package socketio

import (
	"time"

	"github.com/edumarques81/beebridge/internal/domain/controls"
	"github.com/edumarques81/beebridge/internal/domain/protocol"
)

// controlEvents are the client events forwarded as commands.
var controlEvents = []string{
	"play", "pause", "toggle", "next", "prev", "stop",
	"seek", "position", "volume", "setRandom", "setRepeat",
}

// commandFor converts a client event to a command. Numeric arguments may be
// sent bare or as {"value": n}.
func commandFor(event string, args []any) (controls.Command, bool) {
	switch event {
	case "play":
		return controls.Simple(controls.CmdPlay), true
	case "pause":
		return controls.Simple(controls.CmdPause), true
	case "toggle":
		return controls.Simple(controls.CmdPlayPause), true
	case "next":
		return controls.Simple(controls.CmdNext), true
	case "prev":
		return controls.Simple(controls.CmdPrevious), true
	case "stop":
		return controls.Simple(controls.CmdStop), true

	case "seek":
		// Relative seconds; no argument means the configured amount
		if len(args) == 0 {
			return controls.Seek(0), true
		}
		n, ok := number(args[0])
		if !ok {
			return controls.Command{}, false
		}
		return controls.Seek(time.Duration(n * float64(time.Second))), true

	case "position":
		n, ok := firstNumber(args)
		if !ok || n < 0 {
			return controls.Command{}, false
		}
		return controls.SetPosition(time.Duration(n * float64(time.Second))), true

	case "volume":
		n, ok := firstNumber(args)
		if !ok {
			return controls.Command{}, false
		}
		return controls.SetVolume(int(n)), true

	case "setRandom":
		on, ok := firstBool(args, "value")
		if !ok {
			return controls.Command{}, false
		}
		mode := protocol.ShuffleOff
		if on {
			mode = protocol.ShuffleOn
		}
		return controls.Command{Kind: controls.CmdSetShuffle, Shuffle: mode}, true

	case "setRepeat":
		repeat, ok := firstBool(args, "value")
		if !ok {
			return controls.Command{}, false
		}
		single, _ := firstBool(args, "repeatSingle")
		mode := protocol.RepeatNone
		switch {
		case repeat && single:
			mode = protocol.RepeatOne
		case repeat:
			mode = protocol.RepeatAll
		}
		return controls.Command{Kind: controls.CmdSetRepeat, Repeat: mode}, true
	}
	return controls.Command{}, false
}

func firstNumber(args []any) (float64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	return number(args[0])
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case map[string]interface{}:
		return number(n["value"])
	}
	return 0, false
}

func firstBool(args []any, key string) (bool, bool) {
	if len(args) == 0 {
		return false, false
	}
	switch v := args[0].(type) {
	case bool:
		if key == "value" {
			return v, true
		}
	case map[string]interface{}:
		b, ok := v[key].(bool)
		return b, ok
	}
	return false, false
}
