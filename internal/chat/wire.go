package chat

import (
	"fmt"
	"time"
)

// Record is the serialized form of a Message.
type Record struct {
	SenderID        int64           `json:"senderId"`
	SenderName      string          `json:"senderName"`
	SenderAvatarRef string          `json:"senderAvatarRef,omitempty"`
	Body            string          `json:"body,omitempty"`
	ImageRef        string          `json:"imageRef,omitempty"`
	SentAt          string          `json:"sentAt"`
	Kind            Kind            `json:"kind"`
	Proposal        *ProposalRecord `json:"proposal,omitempty"`
}

// ProposalRecord is the serialized form of a Proposal.
type ProposalRecord struct {
	ID               string        `json:"id"`
	SenderID         int64         `json:"senderId"`
	SenderName       string        `json:"senderName"`
	RecipientID      int64         `json:"recipientId"`
	OfferRef         string        `json:"offerRef"`
	OfferTitle       string        `json:"offerTitle,omitempty"`
	OfferImageRef    string        `json:"offerImageRef,omitempty"`
	OfferDescription string        `json:"offerDescription"`
	ExchangeType     ExchangeType  `json:"exchangeType"`
	ExchangeDetails  string        `json:"exchangeDetails,omitempty"`
	SubmittedContact string        `json:"submittedContact,omitempty"`
	DisclosedContact string        `json:"disclosedContact,omitempty"`
	ImageRef         string        `json:"imageRef,omitempty"`
	SentAt           string        `json:"sentAt"`
	State            ProposalState `json:"state"`
}

func (m Message) Record() Record {
	r := Record{
		SenderID:        m.SenderID,
		SenderName:      m.SenderDisplayName,
		SenderAvatarRef: m.SenderAvatarRef,
		SentAt:          FormatTime(m.SentAt),
		Kind:            m.Kind(),
	}
	switch p := m.Payload.(type) {
	case Text:
		r.Body = p.Body
	case Image:
		r.ImageRef = p.Ref
	case System:
		r.Body = p.Body
		if p.Proposal != nil {
			pr := p.Proposal.Record()
			r.Proposal = &pr
		}
	}
	return r
}

// Message decodes r as a message of the given conversation.
func (r Record) Message(conversationID string) (Message, error) {
	sentAt, err := ParseTime(r.SentAt)
	if err != nil {
		return Message{}, fmt.Errorf("message sentAt: %w", err)
	}
	m := Message{
		ConversationID:    conversationID,
		SenderID:          r.SenderID,
		SenderDisplayName: r.SenderName,
		SenderAvatarRef:   r.SenderAvatarRef,
		SentAt:            sentAt,
	}
	switch r.Kind {
	case KindText, "":
		m.Payload = Text{Body: r.Body}
	case KindImage:
		m.Payload = Image{Ref: r.ImageRef}
	case KindSystem:
		sys := System{Body: r.Body}
		if r.Proposal != nil {
			p, err := r.Proposal.Proposal()
			if err != nil {
				return Message{}, err
			}
			sys.Proposal = &p
		}
		m.Payload = sys
	default:
		return Message{}, fmt.Errorf("unknown message kind %q", r.Kind)
	}
	return m, nil
}

func (p Proposal) Record() ProposalRecord {
	return ProposalRecord{
		ID:               p.ID,
		SenderID:         p.SenderID,
		SenderName:       p.SenderName,
		RecipientID:      p.RecipientID,
		OfferRef:         p.OfferRef,
		OfferTitle:       p.OfferTitle,
		OfferImageRef:    p.OfferImageRef,
		OfferDescription: p.OfferDescription,
		ExchangeType:     p.ExchangeType,
		ExchangeDetails:  p.ExchangeDetails,
		SubmittedContact: p.SubmittedContact,
		DisclosedContact: p.DisclosedContact,
		ImageRef:         p.ImageRef,
		SentAt:           FormatTime(p.SentAt),
		State:            p.State,
	}
}

func (r ProposalRecord) Proposal() (Proposal, error) {
	sentAt, err := ParseTime(r.SentAt)
	if err != nil {
		return Proposal{}, fmt.Errorf("proposal sentAt: %w", err)
	}
	switch r.State {
	case Pending, Accepted, Rejected:
	default:
		return Proposal{}, fmt.Errorf("unknown proposal state %q", r.State)
	}
	return Proposal{
		ID:               r.ID,
		SenderID:         r.SenderID,
		SenderName:       r.SenderName,
		RecipientID:      r.RecipientID,
		OfferRef:         r.OfferRef,
		OfferTitle:       r.OfferTitle,
		OfferImageRef:    r.OfferImageRef,
		OfferDescription: r.OfferDescription,
		ExchangeType:     r.ExchangeType,
		ExchangeDetails:  r.ExchangeDetails,
		SubmittedContact: r.SubmittedContact,
		DisclosedContact: r.DisclosedContact,
		ImageRef:         r.ImageRef,
		SentAt:           sentAt,
		State:            r.State,
	}, nil
}

// DecodeConversations turns a wire snapshot into messages, skipping records
// that fail to decode.
func DecodeConversations(snapshot map[string][]Record) (map[string][]Message, []error) {
	out := make(map[string][]Message, len(snapshot))
	var errs []error
	for id, recs := range snapshot {
		if _, _, err := Participants(id); err != nil {
			errs = append(errs, err)
			continue
		}
		msgs := make([]Message, 0, len(recs))
		for _, r := range recs {
			m, err := r.Message(id)
			if err != nil {
				errs = append(errs, fmt.Errorf("conversation %s: %w", id, err))
				continue
			}
			msgs = append(msgs, m)
		}
		out[id] = msgs
	}
	return out, errs
}

// Hint is a best-effort "you have a new message" signal addressed to a recipient.
type Hint struct {
	RecipientID int64     `json:"recipientId"`
	SenderID    int64     `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Timestamp   time.Time `json:"timestamp"`
}

// AppendRequest is the body of POST /api/conversations.
type AppendRequest struct {
	ChatID      string `json:"chatId" binding:"required"`
	Message     Record `json:"message"`
	SenderID    int64  `json:"senderId" binding:"required"`
	RecipientID int64  `json:"recipientId" binding:"required"`
}

// NotifyRequest is the body of POST /api/notify.
type NotifyRequest struct {
	RecipientID int64  `json:"recipientId" binding:"required"`
	SenderID    int64  `json:"senderId" binding:"required"`
	SenderName  string `json:"senderName"`
}

type ConversationsResponse struct {
	Conversations map[string][]Record `json:"conversations"`
}

type HintsResponse struct {
	Hints []Hint `json:"hints"`
}
