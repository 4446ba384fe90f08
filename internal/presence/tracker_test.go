package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/store"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func message(sender int64, at time.Time, body string) chat.Message {
	return chat.Message{SenderID: sender, SenderDisplayName: "user", SentAt: at, Payload: chat.Text{Body: body}}
}

func TestTypingWindow(t *testing.T) {
	clk := newClock()
	tr := NewTracker(store.New(context.Background(), nil), WithNow(clk.Now))

	assert.False(t, tr.IsTyping(100))
	tr.RecordTyping(100)
	assert.True(t, tr.IsTyping(100))

	clk.Advance(2999 * time.Millisecond)
	assert.True(t, tr.IsTyping(100))

	clk.Advance(time.Millisecond)
	assert.False(t, tr.IsTyping(100))

	tr.RecordTyping(100)
	assert.True(t, tr.IsTyping(100))
}

func TestPresenceIsAdvisory(t *testing.T) {
	tr := NewTracker(store.New(context.Background(), nil))
	assert.False(t, tr.IsOnline(7))
	tr.SetPresence(7, true)
	assert.True(t, tr.IsOnline(7))
	tr.SetPresence(7, false)
	assert.False(t, tr.IsOnline(7))
}

// A message from the counterparty 5 minutes ago counts as unread; opening
// the list clears the badge but the message is still unread when queried
// directly.
func TestUnreadBadgeClears(t *testing.T) {
	clk := newClock()
	st := store.New(context.Background(), nil)
	tr := NewTracker(st, WithNow(clk.Now))

	st.Merge(map[string][]chat.Message{
		"42-100": {message(100, clk.Now().Add(-5*time.Minute), "still there?")},
	})
	assert.Equal(t, 1, tr.UnreadCount(42))

	tr.ClearBadge(42)
	assert.Equal(t, 0, tr.UnreadCount(42))
	assert.Equal(t, []string{"42-100"}, tr.Unread(42))
}

func TestUnreadRules(t *testing.T) {
	clk := newClock()
	now := clk.Now()
	st := store.New(context.Background(), nil)
	st.Merge(map[string][]chat.Message{
		// last message is mine
		"42-100": {message(100, now.Add(-time.Minute), "q"), message(42, now.Add(-30*time.Second), "a")},
		// too old
		"42-7": {message(7, now.Add(-31*time.Minute), "old")},
		// fresh from counterparty
		"42-8": {message(8, now.Add(-29*time.Minute), "fresh")},
		// another user's conversation
		"8-9": {message(9, now, "not mine")},
	})
	tr := NewTracker(st, WithNow(clk.Now))

	assert.Equal(t, []string{"42-8"}, tr.Unread(42))
	assert.Equal(t, 1, tr.UnreadCount(42))
}

func TestHintsDriveBadgeBeforeSync(t *testing.T) {
	clk := newClock()
	tr := NewTracker(store.New(context.Background(), nil), WithNow(clk.Now))

	assert.True(t, tr.PushHint(chat.Hint{RecipientID: 42, SenderID: 100, SenderName: "Sara", Timestamp: clk.Now()}))
	assert.False(t, tr.PushHint(chat.Hint{RecipientID: 42, SenderID: 100, SenderName: "Sara", Timestamp: clk.Now()}))
	tr.PushHint(chat.Hint{RecipientID: 42, SenderID: 100, SenderName: "Sara", Timestamp: clk.Now().Add(time.Second)})
	tr.PushHint(chat.Hint{RecipientID: 99, SenderID: 100, SenderName: "Sara", Timestamp: clk.Now()})
	assert.Equal(t, 1, tr.UnreadCount(42), "one counterparty counts once")

	clk.Advance(2 * time.Second)
	tr.ClearBadge(42)
	assert.Equal(t, 0, tr.UnreadCount(42))

	tr.PushHint(chat.Hint{RecipientID: 42, SenderID: 5, SenderName: "Omar", Timestamp: clk.Now().Add(time.Millisecond)})
	assert.Equal(t, 1, tr.UnreadCount(42))

	clk.Advance(31 * time.Minute)
	assert.Equal(t, 0, tr.UnreadCount(42), "stale hints expire with the freshness window")
}

func TestHintAndMessageFromSamePeerCountOnce(t *testing.T) {
	clk := newClock()
	st := store.New(context.Background(), nil)
	st.Merge(map[string][]chat.Message{"42-100": {message(100, clk.Now().Add(-time.Minute), "hi")}})
	tr := NewTracker(st, WithNow(clk.Now))
	tr.PushHint(chat.Hint{RecipientID: 42, SenderID: 100, Timestamp: clk.Now()})

	assert.Equal(t, 1, tr.UnreadCount(42))
}

func TestBlockedSendersAreIgnored(t *testing.T) {
	clk := newClock()
	st := store.New(context.Background(), nil)
	st.Merge(map[string][]chat.Message{"42-100": {message(100, clk.Now().Add(-time.Minute), "spam")}})
	tr := NewTracker(st, WithNow(clk.Now))

	tr.Block(42, 100)
	assert.True(t, tr.IsBlocked(42, 100))
	assert.False(t, tr.IsBlocked(100, 42))
	assert.Equal(t, 0, tr.UnreadCount(42))
	assert.False(t, tr.PushHint(chat.Hint{RecipientID: 42, SenderID: 100, Timestamp: clk.Now()}))

	tr.Unblock(42, 100)
	assert.Equal(t, 1, tr.UnreadCount(42))
}

func TestHintQueueIsCapped(t *testing.T) {
	q := NewHintQueue(DefaultHintCapacity)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 150; i++ {
		require.True(t, q.Push(chat.Hint{RecipientID: 42, SenderID: int64(i + 1), Timestamp: base.Add(time.Duration(i) * time.Second)}))
	}
	assert.Equal(t, 100, q.Len())

	hints := q.For(42, time.Time{})
	require.Len(t, hints, 100)
	assert.Equal(t, int64(51), hints[0].SenderID, "oldest hints are dropped first")
	assert.Equal(t, int64(150), hints[99].SenderID)

	assert.Len(t, q.For(42, base.Add(148*time.Second)), 1)
	assert.Empty(t, q.For(7, time.Time{}))
}

// The counterparty wrote and hinted; the user replied a minute later. Once
// the store holds the reply, the hint no longer keeps the badge up.
func TestHintIgnoredOnceStoreCaughtUp(t *testing.T) {
	clk := newClock()
	st := store.New(context.Background(), nil)
	tr := NewTracker(st, WithNow(clk.Now))

	st.Merge(map[string][]chat.Message{"42-100": {message(100, clk.Now(), "available?")}})
	tr.PushHint(chat.Hint{RecipientID: 42, SenderID: 100, SenderName: "Sara", Timestamp: clk.Now()})
	require.Equal(t, 1, tr.UnreadCount(42))

	clk.Advance(time.Minute)
	st.Append("42-100", message(42, clk.Now(), "yes"))

	assert.Empty(t, tr.Unread(42))
	assert.Equal(t, 0, tr.UnreadCount(42))

	// A newer hint still counts until its message is pulled.
	clk.Advance(time.Minute)
	tr.PushHint(chat.Hint{RecipientID: 42, SenderID: 100, SenderName: "Sara", Timestamp: clk.Now()})
	assert.Equal(t, 1, tr.UnreadCount(42))
}
