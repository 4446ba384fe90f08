package session

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/negotiation"
	"github.com/ageniuscoder/tradechat/internal/reconcile"
	"github.com/ageniuscoder/tradechat/internal/remote"
	"github.com/ageniuscoder/tradechat/internal/store"
)

func fastOptions() Options {
	return Options{
		Reconcile: reconcile.Config{
			ChatInterval:       10 * time.Millisecond,
			ListInterval:       20 * time.Millisecond,
			BackgroundInterval: 50 * time.Millisecond,
			PushTimeout:        time.Second,
		},
		MaxImageBytes: 64,
	}
}

func newPair(t *testing.T) (*Session, *Session, *remote.Memory) {
	t.Helper()
	ctx := context.Background()
	gw := remote.NewMemory()
	ali := New(ctx, Identity{UserID: 42, Name: "Ali"}, store.New(ctx, nil), gw, fastOptions())
	sara := New(ctx, Identity{UserID: 100, Name: "Sara"}, store.New(ctx, nil), gw, fastOptions())
	t.Cleanup(func() {
		ali.Close()
		sara.Close()
	})
	return ali, sara, gw
}

func TestSendTextIsLocalFirst(t *testing.T) {
	ali, sara, gw := newPair(t)
	ctx := context.Background()

	gw.SetOffline(true)
	msg, err := ali.SendText(100, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Body())
	assert.Equal(t, "42-100", msg.ConversationID)
	require.Len(t, ali.Messages(100), 1, "visible before any network round trip")

	res := ali.Sync(ctx)
	require.Error(t, res.Err)
	assert.Equal(t, 1, ali.Store().PendingCount())

	gw.SetOffline(false)
	ali.Sync(ctx)
	assert.Zero(t, ali.Store().PendingCount())

	sara.Sync(ctx)
	got := sara.Messages(42)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Body())
	assert.Equal(t, 1, sara.UnreadCount())
}

func TestSendValidation(t *testing.T) {
	ali, _, _ := newPair(t)

	_, err := ali.SendText(100, "   ")
	require.ErrorIs(t, err, chat.ErrValidation)

	_, err = ali.SendText(42, "me")
	require.ErrorIs(t, err, chat.ErrValidation)

	_, err = ali.SendImage(100, make([]byte, 65))
	require.ErrorIs(t, err, chat.ErrValidation)

	_, err = ali.SendImage(100, nil)
	require.ErrorIs(t, err, chat.ErrValidation)

	assert.Empty(t, ali.Conversations())
}

func TestSendImageDataURL(t *testing.T) {
	ali, _, _ := newPair(t)
	msg, err := ali.SendImage(100, []byte("\x89PNG\r\n\x1a\nrest"))
	require.NoError(t, err)

	img, ok := msg.Payload.(chat.Image)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(img.Ref, "data:image/png;base64,"), img.Ref)
}

func TestSendEmitsNotificationHint(t *testing.T) {
	ali, sara, gw := newPair(t)
	ctx := context.Background()

	_, err := ali.SendText(100, "ping")
	require.NoError(t, err)
	ali.notifies.Wait()

	hints, err := gw.PendingHints(ctx, 100)
	require.NoError(t, err)
	require.Len(t, hints, 1)
	assert.Equal(t, "Ali", hints[0].SenderName)

	// The hint alone drives the badge before the message itself is pulled.
	gw.SetOffline(true)
	sara.HandleEvent(chat.Event{Type: chat.EventHint, Hint: &hints[0]})
	assert.Equal(t, 1, sara.UnreadCount())
}

func TestNegotiationAcrossSessions(t *testing.T) {
	ali, sara, _ := newPair(t)
	ctx := context.Background()

	p, err := ali.Propose(negotiation.SubmitRequest{
		RecipientID:      100,
		OfferRef:         "offer-7",
		OfferDescription: "my bike",
		ExchangeType:     chat.OfferOnly,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ali", p.SenderName)
	ali.Sync(ctx)

	sara.Sync(ctx)
	inbox := sara.Proposals()
	require.Len(t, inbox, 1)
	assert.Equal(t, p.ID, inbox[0].ID)

	_, err = sara.Accept(p.ID, "+201001234567")
	require.NoError(t, err)
	sara.Sync(ctx)

	ali.Sync(ctx)
	got, err := ali.Proposal(p.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.Accepted, got.State)
	assert.Equal(t, "+201001234567", got.DisclosedContact)

	_, err = sara.Reject(p.ID)
	require.ErrorIs(t, err, chat.ErrInvalidState)
}

func TestViewsOwnTheirLoops(t *testing.T) {
	ali, _, gw := newPair(t)

	_, err := ali.OpenChat(100)
	require.NoError(t, err)
	assert.True(t, ali.Running(reconcile.ViewChat))

	_, err = ali.SendText(100, "via loop")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return gw.Appends() == 1 }, 2*time.Second, 5*time.Millisecond)

	ali.CloseChat()
	assert.False(t, ali.Running(reconcile.ViewChat))

	ali.OpenList()
	assert.True(t, ali.Running(reconcile.ViewList))
	ali.CloseList()
	assert.False(t, ali.Running(reconcile.ViewList))

	ali.StartBackground()
	assert.True(t, ali.Running(reconcile.ViewBackground))
	ali.StopBackground()
	assert.False(t, ali.Running(reconcile.ViewBackground))

	_, err = ali.OpenChat(42)
	require.ErrorIs(t, err, chat.ErrValidation)
}

func TestOpenListClearsBadge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := store.New(ctx, nil)
	st.Merge(map[string][]chat.Message{
		"42-100": {{SenderID: 100, SentAt: now.Add(-5 * time.Minute), Payload: chat.Text{Body: "hi"}}},
	})
	opts := fastOptions()
	opts.Now = func() time.Time { return now }
	gw := remote.NewMemory()
	gw.SetOffline(true)
	s := New(ctx, Identity{UserID: 42, Name: "Ali"}, st, gw, opts)
	defer s.Close()

	assert.Equal(t, 1, s.UnreadCount())
	convs := s.OpenList()
	assert.Len(t, convs, 1)
	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, []string{"42-100"}, s.Unread())
	s.CloseList()
}

type typingRecorder struct {
	mu   sync.Mutex
	sent []string
}

func (r *typingRecorder) SendTyping(conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, conversationID)
	return nil
}

func TestTypingAndPresenceEvents(t *testing.T) {
	ali, _, gw := newPair(t)
	gw.SetOffline(true)

	rec := &typingRecorder{}
	ali.SetTypingSink(rec)
	ali.Typing()
	assert.Empty(t, rec.sent, "no open chat")

	_, err := ali.OpenChat(100)
	require.NoError(t, err)
	ali.Typing()
	assert.Equal(t, []string{"42-100"}, rec.sent)

	ali.HandleEvent(chat.Event{Type: chat.EventTyping, ConversationID: "42-100", SenderID: 100})
	assert.True(t, ali.IsTyping(100))

	ali.HandleEvent(chat.Event{Type: chat.EventPresence, SenderID: 100, Status: "online"})
	assert.True(t, ali.IsOnline(100))
	ali.HandleEvent(chat.Event{Type: chat.EventPresence, SenderID: 100, Status: "offline"})
	assert.False(t, ali.IsOnline(100))
}

func TestRealtimeMessageMerges(t *testing.T) {
	ali, _, gw := newPair(t)
	gw.SetOffline(true)

	rec := chat.Message{SenderID: 100, SenderDisplayName: "Sara", SentAt: time.Now().UTC(), Payload: chat.Text{Body: "live"}}.Record()
	ali.HandleEvent(chat.Event{Type: chat.EventMessage, ConversationID: "42-100", Message: &rec})
	ali.HandleEvent(chat.Event{Type: chat.EventMessage, ConversationID: "42-100", Message: &rec})
	ali.HandleEvent(chat.Event{Type: chat.EventMessage, ConversationID: "7-8", Message: &rec})

	msgs := ali.Messages(100)
	require.Len(t, msgs, 1)
	assert.Equal(t, "live", msgs[0].Body())
	assert.Zero(t, ali.Store().PendingCount(), "remote messages are never pushed back")
}

func TestBlockHidesUnread(t *testing.T) {
	ali, sara, _ := newPair(t)
	ctx := context.Background()

	_, err := sara.SendText(42, "buy now!!")
	require.NoError(t, err)
	sara.Sync(ctx)
	ali.Sync(ctx)
	require.Equal(t, 1, ali.UnreadCount())

	ali.Block(100)
	assert.Equal(t, 0, ali.UnreadCount())
	ali.Unblock(100)
	assert.Equal(t, 1, ali.UnreadCount())
}

func TestOpenPersister(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, driver := range []string{"sqlite", "bolt", "pebble"} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(dir, driver)
			p, err := OpenPersister(driver, path)
			require.NoError(t, err)

			data, err := p.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, data, "fresh database")

			require.NoError(t, p.Save(ctx, []byte(`{"version":1}`)))
			require.NoError(t, p.Save(ctx, []byte(`{"version":2}`)))
			data, err = p.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, `{"version":2}`, string(data))
			require.NoError(t, p.Close())

			reopened, err := OpenPersister(driver, path)
			require.NoError(t, err)
			defer reopened.Close()
			data, err = reopened.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, `{"version":2}`, string(data))
		})
	}
	_, err := OpenPersister("redis", dir)
	require.Error(t, err)
}

func TestBlockListSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")
	gw := remote.NewMemory()
	gw.SetOffline(true)
	open := func() *Session {
		p, err := OpenPersister("sqlite", path)
		require.NoError(t, err)
		return New(ctx, Identity{UserID: 42, Name: "Ali"}, store.New(ctx, p), gw, fastOptions())
	}

	s := open()
	s.Store().Merge(map[string][]chat.Message{
		"42-100": {{SenderID: 100, SentAt: time.Now().UTC(), Payload: chat.Text{Body: "buy now!!"}}},
	})
	require.Equal(t, 1, s.UnreadCount())
	s.Block(100)
	require.NoError(t, s.Close())

	reopened := open()
	defer reopened.Close()
	assert.True(t, reopened.IsBlocked(100))
	assert.Equal(t, 0, reopened.UnreadCount())
	assert.False(t, reopened.Tracker().PushHint(chat.Hint{RecipientID: 42, SenderID: 100, Timestamp: time.Now().UTC()}))

	reopened.Unblock(100)
	assert.False(t, reopened.IsBlocked(100))
	assert.Equal(t, []int64(nil), reopened.Store().Blocked())
}
