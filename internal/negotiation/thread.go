package negotiation

import (
	"time"

	"github.com/ageniuscoder/tradechat/internal/chat"
)

// thread gathers every snapshot of one proposal found in the store.
type thread struct {
	initial    *chat.Proposal
	initialAt  time.Time
	terminal   *chat.Proposal
	terminalAt time.Time
	terminalBy string
}

// collect indexes proposal snapshots by proposal id.
func collect(convs map[string][]chat.Message) map[string]*thread {
	out := make(map[string]*thread)
	for _, msgs := range convs {
		for _, msg := range msgs {
			sys, ok := msg.Payload.(chat.System)
			if !ok || sys.Proposal == nil {
				continue
			}
			p := *sys.Proposal
			t := out[p.ID]
			if t == nil {
				t = &thread{}
				out[p.ID] = t
			}
			t.add(p, msg)
		}
	}
	return out
}

func (t *thread) add(p chat.Proposal, msg chat.Message) {
	if !p.State.Terminal() {
		if t.initial == nil || msg.SentAt.Before(t.initialAt) {
			t.initial = &p
			t.initialAt = msg.SentAt
		}
		return
	}
	key := msg.Key().String()
	if t.terminal == nil || msg.SentAt.Before(t.terminalAt) ||
		(msg.SentAt.Equal(t.terminalAt) && key < t.terminalBy) {
		t.terminal = &p
		t.terminalAt = msg.SentAt
		t.terminalBy = key
	}
}

// effective is the Pending snapshot overlaid with the winning terminal
// state, or the terminal snapshot alone when the Pending one is missing.
func (t *thread) effective() chat.Proposal {
	switch {
	case t.initial == nil:
		return *t.terminal
	case t.terminal == nil:
		return *t.initial
	}
	p := *t.initial
	p.State = t.terminal.State
	p.DisclosedContact = t.terminal.DisclosedContact
	return p
}
