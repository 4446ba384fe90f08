package chat

// Realtime event types carried over the websocket.
const (
	EventMessage  = "message"
	EventTyping   = "typing"
	EventPresence = "presence"
	EventHint     = "hint"
)

type Event struct {
	Type           string  `json:"type"`
	ConversationID string  `json:"conversationId,omitempty"`
	SenderID       int64   `json:"senderId,omitempty"`
	SenderName     string  `json:"senderName,omitempty"`
	Status         string  `json:"status,omitempty"` // presence: "online" | "offline"
	LastActive     string  `json:"lastActive,omitempty"`
	Message        *Record `json:"message,omitempty"`
	Hint           *Hint   `json:"hint,omitempty"`
}
