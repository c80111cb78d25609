// Package controls adapts between the host media-control session and the
// remote player's protocol files.
package controls

import (
	"fmt"
	"time"

	"github.com/edumarques81/beebridge/internal/domain/protocol"
)

// CommandKind identifies a user command from the host.
type CommandKind int

// Command kinds.
const (
	CmdPlay CommandKind = iota
	CmdPause
	CmdPlayPause
	CmdNext
	CmdPrevious
	CmdStop
	CmdSeek
	CmdSetPosition
	CmdSetVolume
	CmdSetShuffle
	CmdSetRepeat
	CmdOpenURI
)

var commandNames = [...]string{
	CmdPlay:        "play",
	CmdPause:       "pause",
	CmdPlayPause:   "play-pause",
	CmdNext:        "next",
	CmdPrevious:    "previous",
	CmdStop:        "stop",
	CmdSeek:        "seek",
	CmdSetPosition: "set-position",
	CmdSetVolume:   "set-volume",
	CmdSetShuffle:  "set-shuffle",
	CmdSetRepeat:   "set-repeat",
	CmdOpenURI:     "open-uri",
}

func (k CommandKind) String() string {
	if int(k) < len(commandNames) {
		return commandNames[k]
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is a user-initiated control action from the host desktop.
type Command struct {
	Kind CommandKind
	// Offset is the relative seek. Zero means the configured seek amount
	// forward.
	Offset   time.Duration
	Position time.Duration
	Volume   int
	Shuffle  protocol.ShuffleMode
	Repeat   protocol.RepeatMode
	URI      string
}

// Seek returns a relative seek command. A zero offset uses the default.
func Seek(offset time.Duration) Command { return Command{Kind: CmdSeek, Offset: offset} }

// SetPosition returns an absolute seek command.
func SetPosition(pos time.Duration) Command { return Command{Kind: CmdSetPosition, Position: pos} }

// SetVolume returns a volume command.
func SetVolume(volume int) Command { return Command{Kind: CmdSetVolume, Volume: volume} }

// Simple returns a command without arguments.
func Simple(kind CommandKind) Command { return Command{Kind: kind} }
