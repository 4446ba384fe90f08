// Package presence derives online, typing and unread signals from the local
// store plus ephemeral hints. None of these signals are authoritative: the
// online flag in particular is never expired by the tracker and must only
// drive UI hints.
package presence

import (
	"slices"
	"sync"
	"time"

	"github.com/ageniuscoder/tradechat/internal/chat"
)

const (
	DefaultTypingWindow    = 3 * time.Second
	DefaultFreshnessWindow = 30 * time.Minute
)

// ConversationSource exposes the conversations a user takes part in.
type ConversationSource interface {
	AllConversationsFor(userID int64) map[string][]chat.Message
}

type Tracker struct {
	source       ConversationSource
	hints        *HintQueue
	typingWindow time.Duration
	freshness    time.Duration
	now          func() time.Time

	mu        sync.RWMutex
	online    map[int64]bool
	typing    map[int64]time.Time
	clearedAt map[int64]time.Time
	blocked   map[int64]map[int64]struct{}
}

type Option func(*Tracker)

func WithNow(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func WithTypingWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.typingWindow = d
		}
	}
}

func WithFreshnessWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.freshness = d
		}
	}
}

func WithHintQueue(q *HintQueue) Option {
	return func(t *Tracker) {
		if q != nil {
			t.hints = q
		}
	}
}

func NewTracker(source ConversationSource, opts ...Option) *Tracker {
	t := &Tracker{
		source:       source,
		hints:        NewHintQueue(DefaultHintCapacity),
		typingWindow: DefaultTypingWindow,
		freshness:    DefaultFreshnessWindow,
		now:          func() time.Time { return time.Now().UTC() },
		online:       make(map[int64]bool),
		typing:       make(map[int64]time.Time),
		clearedAt:    make(map[int64]time.Time),
		blocked:      make(map[int64]map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) SetPresence(userID int64, online bool) {
	t.mu.Lock()
	t.online[userID] = online
	t.mu.Unlock()
}

func (t *Tracker) IsOnline(userID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.online[userID]
}

// RecordTyping marks userID as typing as of now.
func (t *Tracker) RecordTyping(userID int64) {
	t.mu.Lock()
	t.typing[userID] = t.now()
	t.mu.Unlock()
}

func (t *Tracker) IsTyping(userID int64) bool {
	t.mu.RLock()
	at, ok := t.typing[userID]
	t.mu.RUnlock()
	return ok && t.now().Sub(at) < t.typingWindow
}

// PushHint queues a hint; it reports false for duplicates and for hints
// from senders the recipient blocked.
func (t *Tracker) PushHint(h chat.Hint) bool {
	if t.IsBlocked(h.RecipientID, h.SenderID) {
		return false
	}
	return t.hints.Push(h)
}

func (t *Tracker) Block(viewerID, userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.blocked[viewerID] == nil {
		t.blocked[viewerID] = make(map[int64]struct{})
	}
	t.blocked[viewerID][userID] = struct{}{}
}

func (t *Tracker) Unblock(viewerID, userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.blocked[viewerID], userID)
}

func (t *Tracker) IsBlocked(viewerID, userID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.blocked[viewerID][userID]
	return ok
}

// ClearBadge resets the unread badge of userID. The messages themselves are
// untouched and Unread keeps reporting them.
func (t *Tracker) ClearBadge(userID int64) {
	t.mu.Lock()
	t.clearedAt[userID] = t.now()
	t.mu.Unlock()
}

// Unread lists the conversations whose last message came from the
// counterparty within the freshness window, ignoring the badge.
func (t *Tracker) Unread(userID int64) []string {
	now := t.now()
	var out []string
	for id, msgs := range t.source.AllConversationsFor(userID) {
		if last, ok := lastMessage(msgs); ok && t.isUnread(userID, last, now) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// UnreadCount is the badge value for userID: unread conversations plus
// hints for conversations the store has not caught up with yet, counting
// each counterparty once and only what arrived after the last ClearBadge.
func (t *Tracker) UnreadCount(userID int64) int {
	now := t.now()
	t.mu.RLock()
	cleared := t.clearedAt[userID]
	t.mu.RUnlock()

	counted := make(map[int64]bool)
	latest := make(map[string]time.Time)
	for id, msgs := range t.source.AllConversationsFor(userID) {
		last, ok := lastMessage(msgs)
		if !ok {
			continue
		}
		latest[id] = last.SentAt
		if !t.isUnread(userID, last, now) || !last.SentAt.After(cleared) {
			continue
		}
		peer, err := chat.Counterparty(id, userID)
		if err != nil || t.IsBlocked(userID, peer) {
			continue
		}
		counted[peer] = true
	}
	for _, h := range t.hints.For(userID, cleared) {
		if counted[h.SenderID] || now.Sub(h.Timestamp) >= t.freshness || t.IsBlocked(userID, h.SenderID) {
			continue
		}
		// The store already holds something at least as new as the hint.
		if at, ok := latest[chat.ConversationID(userID, h.SenderID)]; ok && !at.Before(h.Timestamp) {
			continue
		}
		counted[h.SenderID] = true
	}
	return len(counted)
}

func (t *Tracker) isUnread(userID int64, last chat.Message, now time.Time) bool {
	return last.SenderID != userID && now.Sub(last.SentAt) < t.freshness
}

func lastMessage(msgs []chat.Message) (chat.Message, bool) {
	if len(msgs) == 0 {
		return chat.Message{}, false
	}
	return msgs[len(msgs)-1], true
}
