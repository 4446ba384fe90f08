package presence

import (
	"sync"
	"time"

	"github.com/ageniuscoder/tradechat/internal/chat"
)

const DefaultHintCapacity = 100

// HintQueue is a capped FIFO of notification hints; once full the oldest
// hint is dropped. Identical hints are stored once.
type HintQueue struct {
	mu       sync.Mutex
	capacity int
	items    []chat.Hint
}

func NewHintQueue(capacity int) *HintQueue {
	if capacity <= 0 {
		capacity = DefaultHintCapacity
	}
	return &HintQueue{capacity: capacity}
}

// Push adds h and reports whether it was new.
func (q *HintQueue) Push(h chat.Hint) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.items {
		if existing.RecipientID == h.RecipientID &&
			existing.SenderID == h.SenderID &&
			existing.Timestamp.Equal(h.Timestamp) {
			return false
		}
	}
	q.items = append(q.items, h)
	if over := len(q.items) - q.capacity; over > 0 {
		q.items = append(q.items[:0], q.items[over:]...)
	}
	return true
}

// For returns the hints addressed to recipientID that are newer than since.
func (q *HintQueue) For(recipientID int64, since time.Time) []chat.Hint {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []chat.Hint
	for _, h := range q.items {
		if h.RecipientID == recipientID && h.Timestamp.After(since) {
			out = append(out, h)
		}
	}
	return out
}

func (q *HintQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
