package commdir

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/beebridge/internal/domain/protocol"
	"github.com/edumarques81/beebridge/internal/metrics"
)

// Mailbox is the single pending action slot. Posting while an action is
// still waiting replaces it: the remote player only ever sees the latest.
type Mailbox struct {
	dir    *Dir
	ch     chan protocol.Action
	notify func(ctx context.Context) error
}

// NewMailbox returns a mailbox that writes to dir's action file.
func NewMailbox(dir *Dir) *Mailbox {
	return &Mailbox{
		dir: dir,
		ch:  make(chan protocol.Action, 1),
	}
}

// SetNotifier sets a hook run after every successful write, used to wake
// the remote plugin. Call before Run.
func (m *Mailbox) SetNotifier(notify func(ctx context.Context) error) {
	m.notify = notify
}

// Post queues an action, replacing any action not yet written.
// It never blocks. It reports whether a pending action was dropped.
// Post expects a single producer.
func (m *Mailbox) Post(a protocol.Action) (overwrote bool) {
	for {
		select {
		case m.ch <- a:
			if overwrote {
				metrics.RecordMailboxOverwrite()
			}
			return overwrote
		default:
		}
		select {
		case old := <-m.ch:
			overwrote = true
			log.Debug().Str("action", protocol.EncodeAction(old)).Msg("Pending action overwritten")
		default:
		}
	}
}

// Run writes posted actions to the action file until ctx is done.
func (m *Mailbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-m.ch:
			line := protocol.EncodeAction(a)
			if err := m.dir.WriteFile(protocol.ActionFile, line+"\n"); err != nil {
				log.Error().Err(err).Str("action", line).Msg("Failed to write action")
				continue
			}
			metrics.RecordAction(a.Verb.String())
			log.Debug().Str("action", line).Msg("Action written")

			if m.notify != nil {
				if err := m.notify(ctx); err != nil {
					log.Warn().Err(err).Str("action", line).Msg("Failed to notify remote player")
				}
			}
		}
	}
}
