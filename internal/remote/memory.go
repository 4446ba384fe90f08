package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/presence"
)

// Memory is an in-process Gateway. Every write goes through the wire record
// form, so it behaves like a relay without a network in between.
type Memory struct {
	mu            sync.Mutex
	conversations map[string][]chat.Record
	keys          map[string]map[chat.DedupKey]struct{}
	hints         *presence.HintQueue
	offline       bool
	appends       int
	now           func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string][]chat.Record),
		keys:          make(map[string]map[chat.DedupKey]struct{}),
		hints:         presence.NewHintQueue(presence.DefaultHintCapacity),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetOffline makes every call fail with ErrNetworkUnavailable while true.
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	m.offline = offline
	m.mu.Unlock()
}

// Appends counts stored (non-duplicate) messages.
func (m *Memory) Appends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}

func (m *Memory) ListConversations(ctx context.Context, userID int64) (map[string][]chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "list"); err != nil {
		return nil, err
	}
	snapshot := make(map[string][]chat.Record)
	for id, recs := range m.conversations {
		if chat.Involves(id, userID) {
			snapshot[id] = append([]chat.Record(nil), recs...)
		}
	}
	convs, _ := chat.DecodeConversations(snapshot)
	return convs, nil
}

func (m *Memory) AppendMessage(ctx context.Context, conversationID string, msg chat.Message, senderID, recipientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "append"); err != nil {
		return err
	}
	if chat.ConversationID(senderID, recipientID) != conversationID {
		return fmt.Errorf("conversation %s does not match %d/%d", conversationID, senderID, recipientID)
	}
	rec := msg.Record()
	decoded, err := rec.Message(conversationID)
	if err != nil {
		return err
	}
	key := decoded.Key()
	if _, dup := m.keys[conversationID][key]; dup {
		return nil
	}
	if m.keys[conversationID] == nil {
		m.keys[conversationID] = make(map[chat.DedupKey]struct{})
	}
	m.keys[conversationID][key] = struct{}{}
	m.conversations[conversationID] = append(m.conversations[conversationID], rec)
	m.appends++
	return nil
}

func (m *Memory) SendNotificationHint(ctx context.Context, recipientID, senderID int64, senderName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "notify"); err != nil {
		return err
	}
	m.hints.Push(chat.Hint{
		RecipientID: recipientID,
		SenderID:    senderID,
		SenderName:  senderName,
		Timestamp:   m.now(),
	})
	return nil
}

func (m *Memory) PendingHints(ctx context.Context, recipientID int64) ([]chat.Hint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "hints"); err != nil {
		return nil, err
	}
	return m.hints.For(recipientID, time.Time{}), nil
}

func (m *Memory) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNetworkUnavailable, op, err)
	}
	if m.offline {
		return fmt.Errorf("%w: %s: offline", ErrNetworkUnavailable, op)
	}
	return nil
}
