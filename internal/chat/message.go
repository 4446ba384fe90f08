package chat

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Kind tags the payload variant of a Message.
type Kind string

const (
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindSystem Kind = "system"
)

// Payload is the closed set of message bodies: Text, Image or System.
// Consumers switch on the concrete type and handle all three.
type Payload interface {
	Kind() Kind
	fingerprint(b *strings.Builder)
}

type Text struct {
	Body string
}

type Image struct {
	Ref string
}

// System messages carry engine-generated notices. Negotiation outcomes are
// System messages with a Proposal snapshot attached.
type System struct {
	Body     string
	Proposal *Proposal
}

func (Text) Kind() Kind   { return KindText }
func (Image) Kind() Kind  { return KindImage }
func (System) Kind() Kind { return KindSystem }

func (p Text) fingerprint(b *strings.Builder) {
	b.WriteString(p.Body)
}

func (p Image) fingerprint(b *strings.Builder) {
	b.WriteString(p.Ref)
}

func (p System) fingerprint(b *strings.Builder) {
	b.WriteString(p.Body)
	if p.Proposal != nil {
		b.WriteByte(0)
		b.WriteString(p.Proposal.ID)
		b.WriteByte(0)
		b.WriteString(string(p.Proposal.State))
	}
}

// Message is immutable once created.
type Message struct {
	ConversationID    string
	SenderID          int64
	SenderDisplayName string
	SenderAvatarRef   string
	SentAt            time.Time
	Payload           Payload
}

func (m Message) Kind() Kind {
	if m.Payload == nil {
		return KindText
	}
	return m.Payload.Kind()
}

// DedupKey identifies one logical message regardless of the path that
// delivered it. Identical content sent by the same user within the same
// millisecond collides.
type DedupKey struct {
	SenderID    int64
	SentAt      string
	Fingerprint uint64
}

func (k DedupKey) String() string {
	return strconv.FormatInt(k.SenderID, 10) + "|" + k.SentAt + "|" + strconv.FormatUint(k.Fingerprint, 16)
}

func (m Message) Key() DedupKey {
	var b strings.Builder
	b.WriteString(string(m.Kind()))
	b.WriteByte(0)
	if m.Payload != nil {
		m.Payload.fingerprint(&b)
	}
	return DedupKey{
		SenderID:    m.SenderID,
		SentAt:      FormatTime(m.SentAt),
		Fingerprint: xxhash.Sum64String(b.String()),
	}
}

// Body returns the displayable text of the message.
func (m Message) Body() string {
	switch p := m.Payload.(type) {
	case Text:
		return p.Body
	case Image:
		return "[image]"
	case System:
		return p.Body
	default:
		return ""
	}
}

// FormatTime renders t as ISO-8601 UTC with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
