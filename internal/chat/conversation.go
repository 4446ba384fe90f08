package chat

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Delimiter separates the two participant ids of a conversation id.
const Delimiter = "-"

// ConversationID returns the symmetric key of the conversation between a and b.
func ConversationID(a, b int64) string {
	lo, hi := min(a, b), max(a, b)
	return strconv.FormatInt(lo, 10) + Delimiter + strconv.FormatInt(hi, 10)
}

// Participants splits a conversation id back into its two user ids.
func Participants(conversationID string) (int64, int64, error) {
	left, right, ok := strings.Cut(conversationID, Delimiter)
	if !ok {
		return 0, 0, fmt.Errorf("malformed conversation id %q", conversationID)
	}
	a, err := strconv.ParseInt(left, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed conversation id %q: %w", conversationID, err)
	}
	b, err := strconv.ParseInt(right, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed conversation id %q: %w", conversationID, err)
	}
	if ConversationID(a, b) != conversationID {
		return 0, 0, fmt.Errorf("non-canonical conversation id %q", conversationID)
	}
	return a, b, nil
}

// Involves reports whether userID is one of the two participants.
func Involves(conversationID string, userID int64) bool {
	a, b, err := Participants(conversationID)
	return err == nil && (a == userID || b == userID)
}

// Counterparty returns the other participant of the conversation.
func Counterparty(conversationID string, userID int64) (int64, error) {
	a, b, err := Participants(conversationID)
	if err != nil {
		return 0, err
	}
	switch userID {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return 0, fmt.Errorf("user %d is not part of conversation %s", userID, conversationID)
}

// SortBySentAt orders messages chronologically, keeping arrival order for ties.
func SortBySentAt(msgs []Message) {
	slices.SortStableFunc(msgs, func(x, y Message) int {
		return x.SentAt.Compare(y.SentAt)
	})
}
