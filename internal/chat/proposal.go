package chat

import "time"

type ExchangeType string

const (
	OfferOnly ExchangeType = "offer_only"
	OfferPlus ExchangeType = "offer_plus"
	Negotiate ExchangeType = "negotiate"
)

type ProposalState string

const (
	Pending  ProposalState = "pending"
	Accepted ProposalState = "accepted"
	Rejected ProposalState = "rejected"
)

func (s ProposalState) Terminal() bool {
	return s == Accepted || s == Rejected
}

// Proposal is a structured trade offer sent to the owner of an offer.
// Each state carries its own snapshot inside a System message; the
// snapshot for Pending never holds DisclosedContact.
type Proposal struct {
	ID               string
	SenderID         int64
	SenderName       string
	RecipientID      int64
	OfferRef         string
	OfferTitle       string
	OfferImageRef    string
	OfferDescription string
	ExchangeType     ExchangeType
	ExchangeDetails  string
	SubmittedContact string
	DisclosedContact string
	ImageRef         string
	SentAt           time.Time
	State            ProposalState
}

func (p Proposal) ConversationID() string {
	return ConversationID(p.SenderID, p.RecipientID)
}
