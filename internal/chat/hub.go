package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ageniuscoder/tradechat/internal/logging"
	"github.com/rs/zerolog"
)

// PeerLister resolves the users that share a conversation with userID.
type PeerLister interface {
	Peers(ctx context.Context, userID int64) ([]int64, error)
}

type Hub struct {
	peers PeerLister

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex
	// userID -> set of client connections (multi-tab / multi-device)
	clients    map[int64]map[*Client]bool
	lastActive map[int64]time.Time

	logger zerolog.Logger
	now    func() time.Time
}

func NewHub(peers PeerLister) *Hub {
	return &Hub{
		peers:      peers,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[int64]map[*Client]bool),
		lastActive: make(map[int64]time.Time),
		logger:     logging.Component("hub"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.lastActive[client.UserID] = h.now()
			h.mu.Unlock()

			h.BroadcastPresence(ctx, client.UserID, "online")
		case client := <-h.unregister:
			wentOffline := false
			h.mu.Lock()
			if set, ok := h.clients[client.UserID]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					close(client.Send)
					if len(set) == 0 {
						delete(h.clients, client.UserID)
						h.lastActive[client.UserID] = h.now()
						wentOffline = true
					}
				}
			}
			h.mu.Unlock()

			if wentOffline {
				h.BroadcastPresence(ctx, client.UserID, "offline")
			}
		}
	}
}

// Register hands a connected client to the hub. It reports false once the hub stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Touch records activity for userID.
func (h *Hub) Touch(userID int64) {
	h.mu.Lock()
	h.lastActive[userID] = h.now()
	h.mu.Unlock()
}

// Online reports whether userID has at least one live connection.
func (h *Hub) Online(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) LastActive(userID int64) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.lastActive[userID]
	return t, ok
}

// BroadcastMessage sends a newly appended message to the counterparty.
func (h *Hub) BroadcastMessage(conversationID string, rec Record) {
	recipient, err := Counterparty(conversationID, rec.SenderID)
	if err != nil {
		h.logger.Warn().Err(err).Msg("broadcast message: no recipient")
		return
	}
	h.sendTo(recipient, Event{
		Type:           EventMessage,
		ConversationID: conversationID,
		SenderID:       rec.SenderID,
		SenderName:     rec.SenderName,
		Message:        &rec,
	})
}

func (h *Hub) BroadcastTyping(conversationID string, userID int64, name string) {
	recipient, err := Counterparty(conversationID, userID)
	if err != nil {
		return
	}
	h.sendTo(recipient, Event{
		Type:           EventTyping,
		ConversationID: conversationID,
		SenderID:       userID,
		SenderName:     name,
	})
}

func (h *Hub) BroadcastHint(hint Hint) {
	h.sendTo(hint.RecipientID, Event{
		Type:       EventHint,
		SenderID:   hint.SenderID,
		SenderName: hint.SenderName,
		Hint:       &hint,
	})
}

// BroadcastPresence tells every conversation peer of userID about a status change.
func (h *Hub) BroadcastPresence(ctx context.Context, userID int64, status string) {
	if h.peers == nil {
		return
	}
	peers, err := h.peers.Peers(ctx, userID)
	if err != nil {
		h.logger.Warn().Err(err).Int64("user_id", userID).Msg("presence: failed to list peers")
		return
	}
	last, _ := h.LastActive(userID)
	ev := Event{
		Type:       EventPresence,
		SenderID:   userID,
		Status:     status,
		LastActive: FormatTime(last),
	}
	for _, uid := range peers {
		h.sendTo(uid, ev)
	}
}

func (h *Hub) sendTo(userID int64, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("type", ev.Type).Msg("marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients[userID] {
		select {
		case client.Send <- payload:
		default:
			// slow/broken client -> drop
			close(client.Send)
			delete(h.clients[userID], client)
			h.logger.Warn().Int64("user_id", userID).Msg("dropped slow client")
		}
	}
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}
