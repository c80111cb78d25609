package mpris

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"

	"github.com/edumarques81/beebridge/internal/domain/controls"
)

// newPipeSession builds a registered-looking session over an in-memory
// connection. Outgoing signals are discarded.
func newPipeSession(t *testing.T) (*Session, chan controls.Command) {
	t.Helper()
	local, peer := net.Pipe()
	go io.Copy(io.Discard, peer)

	conn, err := dbus.NewConn(local)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		peer.Close()
	})

	s := NewSession(conn)
	props, err := prop.Export(conn, objectPath, s.propertyMap())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	commands := make(chan controls.Command, 4096)
	s.props = props
	s.setCommands(commands)
	return s, commands
}

func TestSession_HostWriteDuringPublish(t *testing.T) {
	s, commands := newPipeSession(t)
	const rounds = 500

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		// What the bus dispatcher does for a client's Properties.Set
		for i := 0; i < rounds; i++ {
			if err := s.props.Set(playerIface, "Volume", dbus.MakeVariant(0.5)); err != nil {
				t.Errorf("Set failed: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			s.SetPlayback(controls.HostPlaying, time.Duration(i)*time.Second)
			s.SetVolume(i % 100)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("publishing blocked while a host property write was in progress")
	}

	if got := len(commands); got != rounds {
		t.Errorf("expected %d volume commands, got %d", rounds, got)
	}
}

func TestSession_Seek(t *testing.T) {
	tests := []struct {
		name   string
		offset int64
		want   *controls.Command
	}{
		{name: "zero offset is a no-op", offset: 0},
		{name: "forward", offset: 5_000_000, want: &controls.Command{Kind: controls.CmdSeek, Offset: 5 * time.Second}},
		{name: "backward", offset: -2_000_000, want: &controls.Command{Kind: controls.CmdSeek, Offset: -2 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, commands := newPipeSession(t)
			(&playerObject{s: s}).Seek(tt.offset)

			switch {
			case tt.want == nil && len(commands) != 0:
				t.Errorf("expected no command, got %+v", <-commands)
			case tt.want != nil && len(commands) != 1:
				t.Fatalf("expected 1 command, got %d", len(commands))
			case tt.want != nil:
				if got := <-commands; got != *tt.want {
					t.Errorf("expected %+v, got %+v", *tt.want, got)
				}
			}
		})
	}
}

func TestSession_UnregisteredDropsCommands(t *testing.T) {
	s, commands := newPipeSession(t)
	s.setCommands(nil)

	(&playerObject{s: s}).Play()
	if len(commands) != 0 {
		t.Errorf("expected no command after unregister, got %d", len(commands))
	}
}
