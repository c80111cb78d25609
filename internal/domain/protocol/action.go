package protocol

import (
	"strconv"
	"strings"
)

// Verb identifies the kind of an Action.
type Verb int

// Action verbs.
const (
	VerbPlay Verb = iota + 1
	VerbShuffle
	VerbRepeat
	VerbSeek
	VerbPosition
	VerbVolume
)

var verbTokens = map[Verb]string{
	VerbPlay:     "play",
	VerbShuffle:  "shuffle",
	VerbRepeat:   "repeat",
	VerbSeek:     "seek",
	VerbPosition: "position",
	VerbVolume:   "volume",
}

// String returns the wire token of the verb.
func (v Verb) String() string {
	if s, ok := verbTokens[v]; ok {
		return s
	}
	return "unknown"
}

// ShuffleMode is the argument of the shuffle verb.
type ShuffleMode int

// Shuffle modes.
const (
	ShuffleToggle ShuffleMode = iota
	ShuffleOn
	ShuffleOff
)

func (m ShuffleMode) String() string {
	switch m {
	case ShuffleOn:
		return "on"
	case ShuffleOff:
		return "off"
	default:
		return "toggle"
	}
}

// RepeatMode is the argument of the repeat verb.
type RepeatMode int

// Repeat modes.
const (
	RepeatNone RepeatMode = iota
	RepeatOne
	RepeatAll
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "none"
	}
}

// Action is a single pending control instruction for the remote player.
// Build it with the constructors below; only the field matching Verb is set.
type Action struct {
	Verb    Verb
	Shuffle ShuffleMode
	Repeat  RepeatMode
	Seconds int // seek delta (signed) or absolute position
	Volume  int
}

// Play toggles play/pause on the remote player.
func Play() Action { return Action{Verb: VerbPlay} }

// Shuffle sets or toggles shuffle.
func Shuffle(m ShuffleMode) Action { return Action{Verb: VerbShuffle, Shuffle: m} }

// Repeat sets the repeat mode.
func Repeat(m RepeatMode) Action { return Action{Verb: VerbRepeat, Repeat: m} }

// Seek moves the playhead by a signed number of seconds.
func Seek(seconds int) Action { return Action{Verb: VerbSeek, Seconds: seconds} }

// SetPosition moves the playhead to an absolute position in seconds.
func SetPosition(seconds int) Action {
	if seconds < 0 {
		seconds = 0
	}
	return Action{Verb: VerbPosition, Seconds: seconds}
}

// SetVolume sets the remote volume, clamped to 0-100.
func SetVolume(volume int) Action {
	return Action{Verb: VerbVolume, Volume: clampVolume(volume)}
}

// EncodeAction renders an action as a single "<verb> [arg]" line.
func EncodeAction(a Action) string {
	switch a.Verb {
	case VerbPlay:
		return "play"
	case VerbShuffle:
		return "shuffle " + a.Shuffle.String()
	case VerbRepeat:
		return "repeat " + a.Repeat.String()
	case VerbSeek:
		return "seek " + strconv.Itoa(a.Seconds)
	case VerbPosition:
		return "position " + strconv.Itoa(a.Seconds)
	case VerbVolume:
		return "volume " + strconv.Itoa(a.Volume)
	default:
		return ""
	}
}

// DecodeAction parses an action line. Blank text, an unknown verb, a wrong
// number of arguments or an unrecognised argument all yield ok == false:
// the command is ignored rather than guessed.
func DecodeAction(text string) (Action, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Action{}, false
	}

	verb, args := fields[0], fields[1:]
	if verb == "play" {
		if len(args) != 0 {
			return Action{}, false
		}
		return Play(), true
	}
	if len(args) != 1 {
		return Action{}, false
	}
	arg := args[0]

	switch verb {
	case "shuffle":
		switch arg {
		case "on":
			return Shuffle(ShuffleOn), true
		case "off":
			return Shuffle(ShuffleOff), true
		case "toggle":
			return Shuffle(ShuffleToggle), true
		}
	case "repeat":
		switch arg {
		case "one":
			return Repeat(RepeatOne), true
		case "none":
			return Repeat(RepeatNone), true
		case "all":
			return Repeat(RepeatAll), true
		}
	case "seek":
		if n, err := strconv.Atoi(arg); err == nil {
			return Seek(n), true
		}
	case "position":
		if n, err := strconv.Atoi(arg); err == nil && n >= 0 {
			return SetPosition(n), true
		}
	case "volume":
		if n, err := strconv.Atoi(arg); err == nil && n >= 0 && n <= 100 {
			return SetVolume(n), true
		}
	}
	return Action{}, false
}
