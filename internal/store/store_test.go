package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/storage/boltdb"
	"github.com/ageniuscoder/tradechat/internal/storage/pebbledb"
	"github.com/ageniuscoder/tradechat/internal/storage/sqlite"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func text(sender int64, at time.Duration, body string) chat.Message {
	return chat.Message{
		SenderID:          sender,
		SenderDisplayName: "user",
		SentAt:            t0.Add(at),
		Payload:           chat.Text{Body: body},
	}
}

func bodies(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body())
	}
	return out
}

func TestAppendIsVisibleImmediately(t *testing.T) {
	s := New(context.Background(), nil)
	s.Append("42-100", text(42, 0, "hi"))

	got := s.Get("42-100")
	require.Len(t, got, 1)
	assert.Equal(t, "42-100", got[0].ConversationID)
	assert.Equal(t, 1, s.PendingCount())
}

func TestAppendSkipsDuplicates(t *testing.T) {
	s := New(context.Background(), nil)
	s.Append("42-100", text(42, 0, "hi"))
	s.Append("42-100", text(42, 0, "hi"))

	assert.Len(t, s.Get("42-100"), 1)
	assert.Equal(t, 1, s.PendingCount())
}

func TestMergeIsIdempotent(t *testing.T) {
	snapshot := map[string][]chat.Message{
		"42-100": {text(42, 2*time.Second, "b"), text(100, time.Second, "a")},
		"7-42":   {text(7, 0, "yo")},
	}
	s := New(context.Background(), nil)

	first := s.Merge(snapshot)
	assert.Equal(t, 3, first.Added)
	assert.ElementsMatch(t, []string{"42-100", "7-42"}, first.Touched)
	after := s.AllConversationsFor(42)
	v := s.Version()

	second := s.Merge(snapshot)
	assert.Zero(t, second.Added)
	assert.Empty(t, second.Touched)
	assert.Equal(t, after, s.AllConversationsFor(42))
	assert.Equal(t, v, s.Version())

	assert.Equal(t, []string{"a", "b"}, bodies(s.Get("42-100")))
}

func TestMergeOrderIndependent(t *testing.T) {
	m1 := text(42, 0, "one")
	m2 := text(100, time.Second, "two")
	m3 := text(42, 2*time.Second, "three")

	a := New(context.Background(), nil)
	a.Merge(map[string][]chat.Message{"42-100": {m1, m2}})
	a.Merge(map[string][]chat.Message{"42-100": {m3, m1}})

	b := New(context.Background(), nil)
	b.Merge(map[string][]chat.Message{"42-100": {m3}})
	b.Merge(map[string][]chat.Message{"42-100": {m2, m3, m1}})

	assert.Equal(t, bodies(a.Get("42-100")), bodies(b.Get("42-100")))
	assert.Equal(t, []string{"one", "two", "three"}, bodies(a.Get("42-100")))
}

func TestMergeConfirmsPending(t *testing.T) {
	s := New(context.Background(), nil)
	local := text(42, 0, "hi")
	s.Append("42-100", local)
	require.Equal(t, 1, s.PendingCount())

	res := s.Merge(map[string][]chat.Message{"42-100": {local}})
	assert.Zero(t, res.Added)
	assert.Equal(t, 1, res.Confirmed)
	assert.Zero(t, s.PendingCount())
	assert.Len(t, s.Get("42-100"), 1)
}

func TestClaimAndRelease(t *testing.T) {
	s := New(context.Background(), nil)
	msg := text(42, 0, "hi")
	s.Append("42-100", msg)

	claimed := s.ClaimPending()
	require.Len(t, claimed, 1)
	assert.Equal(t, "42-100", claimed[0].ConversationID)
	assert.Empty(t, s.ClaimPending(), "in-flight messages are not claimed twice")

	s.Release(msg.Key(), false)
	require.Len(t, s.ClaimPending(), 1, "a failed push is retried")

	s.Release(msg.Key(), true)
	assert.Zero(t, s.PendingCount())
	assert.Empty(t, s.ClaimPending())
}

func TestReplaceAllKeepsPendingWrites(t *testing.T) {
	s := New(context.Background(), nil)
	s.Merge(map[string][]chat.Message{"42-100": {text(100, 0, "old")}})
	confirmed := text(42, time.Second, "confirmed")
	unconfirmed := text(42, 2*time.Second, "unconfirmed")
	s.Append("42-100", confirmed)
	s.Append("42-100", unconfirmed)

	s.ReplaceAll(map[string][]chat.Message{
		"42-100": {text(100, 0, "old"), confirmed},
		"42-77":  {text(77, 0, "new")},
	})

	assert.Equal(t, []string{"old", "confirmed", "unconfirmed"}, bodies(s.Get("42-100")))
	assert.Equal(t, []string{"new"}, bodies(s.Get("42-77")))
	assert.Equal(t, 1, s.PendingCount())
}

func TestAllConversationsForFilters(t *testing.T) {
	s := New(context.Background(), nil)
	s.Append("42-100", text(42, 0, "a"))
	s.Append("7-8", text(7, 0, "b"))

	convs := s.AllConversationsFor(42)
	assert.Len(t, convs, 1)
	assert.Contains(t, convs, "42-100")
}

func TestPersistenceSurvivesRestart(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T, dir string) Persister
	}{
		{"sqlite", func(t *testing.T, dir string) Persister {
			db, err := sqlite.Open("file:" + filepath.Join(dir, "local.db"))
			require.NoError(t, err)
			return db
		}},
		{"bolt", func(t *testing.T, dir string) Persister {
			db, err := boltdb.Open(filepath.Join(dir, "local.bolt"))
			require.NoError(t, err)
			return db
		}},
		{"pebble", func(t *testing.T, dir string) Persister {
			db, err := pebbledb.Open(filepath.Join(dir, "pebble"))
			require.NoError(t, err)
			return db
		}},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			s := New(ctx, b.open(t, dir))
			s.Merge(map[string][]chat.Message{"42-100": {text(100, 0, "remote")}})
			pushed := text(42, time.Second, "pushed")
			s.Append("42-100", pushed)
			s.Append("42-100", text(42, 2*time.Second, "waiting"))
			s.Release(pushed.Key(), true)
			require.NoError(t, s.Close())

			restored := New(ctx, b.open(t, dir))
			defer restored.Close()
			assert.Equal(t, []string{"remote", "pushed", "waiting"}, bodies(restored.Get("42-100")))
			require.Equal(t, 1, restored.PendingCount())
			claimed := restored.ClaimPending()
			require.Len(t, claimed, 1)
			assert.Equal(t, "waiting", claimed[0].Message.Body())
		})
	}
}

type failingPersister struct {
	saves int
}

func (f *failingPersister) Load(context.Context) ([]byte, error) { return nil, nil }

func (f *failingPersister) Save(context.Context, []byte) error {
	f.saves++
	return errors.New("disk full")
}

func (f *failingPersister) Close() error { return nil }

func TestStorageFailureKeepsMemoryState(t *testing.T) {
	p := &failingPersister{}
	s := New(context.Background(), p)

	s.Append("42-100", text(42, 0, "hi"))
	s.Append("42-100", text(42, time.Second, "there"))

	assert.Equal(t, 2, p.saves)
	assert.Equal(t, []string{"hi", "there"}, bodies(s.Get("42-100")))
}

func TestCorruptSnapshotStartsEmpty(t *testing.T) {
	s := New(context.Background(), &staticPersister{data: []byte("{not json")})
	assert.Empty(t, s.AllConversationsFor(42))

	s.Append("42-100", text(42, 0, "hi"))
	assert.Len(t, s.Get("42-100"), 1)
}

type staticPersister struct {
	data []byte
}

func (p *staticPersister) Load(context.Context) ([]byte, error) { return p.data, nil }
func (p *staticPersister) Save(_ context.Context, data []byte) error {
	p.data = data
	return nil
}
func (p *staticPersister) Close() error { return nil }

func TestBlockListSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	p := &staticPersister{}
	s := New(ctx, p)
	s.SetBlocked(100, true)
	s.SetBlocked(7, true)
	s.SetBlocked(7, true)
	s.SetBlocked(9, false)
	assert.Equal(t, []int64{7, 100}, s.Blocked())

	restored := New(ctx, &staticPersister{data: p.data})
	assert.Equal(t, []int64{7, 100}, restored.Blocked())

	restored.SetBlocked(100, false)
	assert.Equal(t, []int64{7}, restored.Blocked())
}
