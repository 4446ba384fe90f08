package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationIDIsSymmetric(t *testing.T) {
	pairs := [][2]int64{{42, 100}, {100, 42}, {1, 2}, {7, 7}, {9, 10}, {123456789, 5}}
	for _, p := range pairs {
		assert.Equal(t, ConversationID(p[0], p[1]), ConversationID(p[1], p[0]))
	}
	assert.Equal(t, "42-100", ConversationID(100, 42))
}

func TestConversationIDIsCollisionFree(t *testing.T) {
	// Without a delimiter 1,23 and 12,3 would both read "123".
	assert.NotEqual(t, ConversationID(1, 23), ConversationID(12, 3))
}

func TestParticipants(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		a, b    int64
		wantErr bool
	}{
		{name: "canonical", id: "42-100", a: 42, b: 100},
		{name: "reversed", id: "100-42", wantErr: true},
		{name: "no delimiter", id: "42100", wantErr: true},
		{name: "not numeric", id: "a-b", wantErr: true},
		{name: "empty", id: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, err := Participants(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.a, a)
			assert.Equal(t, tt.b, b)
		})
	}
}

func TestCounterparty(t *testing.T) {
	peer, err := Counterparty("42-100", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(100), peer)

	peer, err = Counterparty("42-100", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(42), peer)

	_, err = Counterparty("42-100", 7)
	require.Error(t, err)

	assert.True(t, Involves("42-100", 42))
	assert.False(t, Involves("42-100", 7))
}

func TestSortBySentAtKeepsTies(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		{SenderID: 1, SentAt: t0.Add(2 * time.Second), Payload: Text{Body: "c"}},
		{SenderID: 2, SentAt: t0, Payload: Text{Body: "a"}},
		{SenderID: 1, SentAt: t0.Add(time.Second), Payload: Text{Body: "b1"}},
		{SenderID: 2, SentAt: t0.Add(time.Second), Payload: Text{Body: "b2"}},
	}
	SortBySentAt(msgs)

	var bodies []string
	for _, m := range msgs {
		bodies = append(bodies, m.Body())
	}
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, bodies)
}
