// Package remote talks to the shared conversation store.
package remote

import (
	"context"
	"errors"

	"github.com/ageniuscoder/tradechat/internal/chat"
)

// ErrNetworkUnavailable wraps every failed pull or push. Callers treat it as
// "local-only for now" and retry on the next tick.
var ErrNetworkUnavailable = errors.New("network unavailable")

// Gateway is the collaborator boundary of the sync engine.
type Gateway interface {
	// ListConversations returns every conversation of userID keyed by
	// conversation id, each in remote order.
	ListConversations(ctx context.Context, userID int64) (map[string][]chat.Message, error)
	AppendMessage(ctx context.Context, conversationID string, msg chat.Message, senderID, recipientID int64) error
	SendNotificationHint(ctx context.Context, recipientID, senderID int64, senderName string) error
	// PendingHints returns the hints the remote store holds for recipientID.
	PendingHints(ctx context.Context, recipientID int64) ([]chat.Hint, error)
}
