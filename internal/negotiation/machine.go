// Package negotiation drives structured trade proposals on top of the
// conversation store.
//
// A proposal never changes in place. Submission appends a System message
// carrying a Pending snapshot; accept and reject append another System
// message carrying the terminal snapshot. The effective state of a proposal
// is the earliest terminal snapshot by sentAt, or Pending when none exists,
// so two devices racing on the same proposal converge after reconciliation.
package negotiation

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/logging"
	"github.com/ageniuscoder/tradechat/internal/utils"
)

// Log is the part of the message store the machine reads and appends to.
type Log interface {
	Append(conversationID string, msg chat.Message)
	AllConversationsFor(userID int64) map[string][]chat.Message
}

// Notifier delivers a best-effort "you have news" hint to a counterparty.
type Notifier interface {
	NotifyCounterparty(recipientID, senderID int64, senderName string)
}

// SubmitRequest is the input of Submit. String fields are trimmed before
// validation.
type SubmitRequest struct {
	SenderID         int64             `json:"senderId" validate:"required"`
	SenderName       string            `json:"senderName" validate:"max=100"`
	SenderAvatarRef  string            `json:"senderAvatarRef"`
	RecipientID      int64             `json:"recipientId" validate:"required,nefield=SenderID"`
	OfferRef         string            `json:"offerRef" validate:"required,max=200"`
	OfferTitle       string            `json:"offerTitle" validate:"max=200"`
	OfferImageRef    string            `json:"offerImageRef"`
	OfferDescription string            `json:"offerDescription" validate:"required,max=2000"`
	ExchangeType     chat.ExchangeType `json:"exchangeType" validate:"required,oneof=offer_only offer_plus negotiate"`
	ExchangeDetails  string            `json:"exchangeDetails" validate:"required_if=ExchangeType offer_plus,max=2000"`
	SubmittedContact string            `json:"submittedContact" validate:"required_if=ExchangeType negotiate,max=200"`
	ImageRef         string            `json:"imageRef"`
}

func (r *SubmitRequest) trim() {
	r.SenderName = strings.TrimSpace(r.SenderName)
	r.OfferRef = strings.TrimSpace(r.OfferRef)
	r.OfferTitle = strings.TrimSpace(r.OfferTitle)
	r.OfferDescription = strings.TrimSpace(r.OfferDescription)
	r.ExchangeType = chat.ExchangeType(strings.TrimSpace(string(r.ExchangeType)))
	r.ExchangeDetails = strings.TrimSpace(r.ExchangeDetails)
	r.SubmittedContact = strings.TrimSpace(r.SubmittedContact)
}

type Machine struct {
	log      Log
	notifier Notifier
	validate *validator.Validate
	region   string
	now      func() time.Time
	newID    func() string
	logger   zerolog.Logger

	// mu makes the state check and the transition append one step.
	mu sync.Mutex
}

type Option func(*Machine)

func WithNotifier(n Notifier) Option {
	return func(m *Machine) { m.notifier = n }
}

func WithNow(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithContactRegion sets the default region used to normalize phone contacts.
func WithContactRegion(region string) Option {
	return func(m *Machine) { m.region = region }
}

func New(log Log, opts ...Option) *Machine {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	m := &Machine{
		log:      log,
		validate: v,
		region:   "EG",
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		logger:   logging.Component("negotiation"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit validates req and appends a Pending proposal to the conversation
// between sender and recipient. Nothing is written when validation fails.
func (m *Machine) Submit(req SubmitRequest) (chat.Proposal, error) {
	req.trim()
	if err := m.validate.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return chat.Proposal{}, &chat.ValidationError{Fields: utils.ValidationErr(ve)}
		}
		return chat.Proposal{}, err
	}

	sentAt := m.now().Truncate(time.Millisecond)
	p := chat.Proposal{
		ID:               m.newID(),
		SenderID:         req.SenderID,
		SenderName:       req.SenderName,
		RecipientID:      req.RecipientID,
		OfferRef:         req.OfferRef,
		OfferTitle:       req.OfferTitle,
		OfferImageRef:    req.OfferImageRef,
		OfferDescription: req.OfferDescription,
		ExchangeType:     req.ExchangeType,
		ExchangeDetails:  req.ExchangeDetails,
		SubmittedContact: utils.NormalizeContact(req.SubmittedContact, m.region),
		ImageRef:         req.ImageRef,
		SentAt:           sentAt,
		State:            chat.Pending,
	}

	m.mu.Lock()
	snapshot := p
	m.log.Append(p.ConversationID(), chat.Message{
		SenderID:          req.SenderID,
		SenderDisplayName: req.SenderName,
		SenderAvatarRef:   req.SenderAvatarRef,
		SentAt:            sentAt,
		Payload:           chat.System{Body: submitBody(p), Proposal: &snapshot},
	})
	m.mu.Unlock()

	m.logger.Info().
		Str("proposal", p.ID).
		Int64("sender", p.SenderID).
		Int64("recipient", p.RecipientID).
		Str("exchange", string(p.ExchangeType)).
		Msg("proposal submitted")
	m.notify(p.RecipientID, p.SenderID, p.SenderName)
	return p, nil
}

// Accept moves a Pending proposal to Accepted and discloses contact to the
// proposer. Only the proposal's recipient may accept.
func (m *Machine) Accept(proposalID string, actorID int64, actorName, disclosedContact string) (chat.Proposal, error) {
	return m.transition(proposalID, actorID, actorName, chat.Accepted, disclosedContact)
}

// Reject moves a Pending proposal to Rejected. Nothing is disclosed.
func (m *Machine) Reject(proposalID string, actorID int64, actorName string) (chat.Proposal, error) {
	return m.transition(proposalID, actorID, actorName, chat.Rejected, "")
}

func (m *Machine) transition(proposalID string, actorID int64, actorName string, to chat.ProposalState, contact string) (chat.Proposal, error) {
	m.mu.Lock()

	t, ok := collect(m.log.AllConversationsFor(actorID))[proposalID]
	if !ok {
		m.mu.Unlock()
		return chat.Proposal{}, fmt.Errorf("proposal %s: %w", proposalID, chat.ErrNotFound)
	}
	current := t.effective()
	if current.RecipientID != actorID {
		m.mu.Unlock()
		return chat.Proposal{}, chat.NewValidationError("actor", "recipient", "Only the offer owner can answer this proposal.")
	}
	if current.State.Terminal() {
		m.mu.Unlock()
		return chat.Proposal{}, &chat.InvalidStateError{ProposalID: proposalID, State: current.State}
	}

	next := current
	next.State = to
	if to == chat.Accepted {
		contact = strings.TrimSpace(contact)
		if contact == "" {
			m.mu.Unlock()
			return chat.Proposal{}, chat.NewValidationError("disclosedContact", "required", "This field is required.")
		}
		next.DisclosedContact = utils.NormalizeContact(contact, m.region)
	}

	sentAt := m.now().Truncate(time.Millisecond)
	if !sentAt.After(t.initialAt) {
		sentAt = t.initialAt.Add(time.Millisecond)
	}
	snapshot := next
	m.log.Append(current.ConversationID(), chat.Message{
		SenderID:          actorID,
		SenderDisplayName: actorName,
		SentAt:            sentAt,
		Payload:           chat.System{Body: transitionBody(next), Proposal: &snapshot},
	})
	m.mu.Unlock()

	m.logger.Info().
		Str("proposal", proposalID).
		Int64("actor", actorID).
		Str("state", string(to)).
		Msg("proposal answered")
	m.notify(current.SenderID, actorID, actorName)
	return next, nil
}

// Get returns the effective proposal as seen from viewerID's conversations.
func (m *Machine) Get(proposalID string, viewerID int64) (chat.Proposal, error) {
	t, ok := collect(m.log.AllConversationsFor(viewerID))[proposalID]
	if !ok {
		return chat.Proposal{}, fmt.Errorf("proposal %s: %w", proposalID, chat.ErrNotFound)
	}
	return t.effective(), nil
}

// ForUser lists the proposals userID sent or received, newest first.
func (m *Machine) ForUser(userID int64) []chat.Proposal {
	threads := collect(m.log.AllConversationsFor(userID))
	out := make([]chat.Proposal, 0, len(threads))
	for _, t := range threads {
		p := t.effective()
		if p.SenderID == userID || p.RecipientID == userID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b chat.Proposal) int {
		if c := b.SentAt.Compare(a.SentAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (m *Machine) notify(recipientID, senderID int64, senderName string) {
	if m.notifier == nil {
		return
	}
	m.notifier.NotifyCounterparty(recipientID, senderID, senderName)
}

func submitBody(p chat.Proposal) string {
	title := p.OfferTitle
	if title == "" {
		title = p.OfferRef
	}
	switch p.ExchangeType {
	case chat.OfferPlus:
		return fmt.Sprintf("New proposal for %s: %s (plus %s)", title, p.OfferDescription, p.ExchangeDetails)
	case chat.Negotiate:
		return fmt.Sprintf("New proposal for %s: %s (let's negotiate, contact %s)", title, p.OfferDescription, p.SubmittedContact)
	default:
		return fmt.Sprintf("New proposal for %s: %s", title, p.OfferDescription)
	}
}

func transitionBody(p chat.Proposal) string {
	if p.State == chat.Accepted {
		return "Proposal accepted. Contact: " + p.DisclosedContact
	}
	return "Proposal rejected."
}
