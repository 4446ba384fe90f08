// Package session wires the store, reconciliation loops, negotiation and
// presence for one signed-in user. Its methods are the UI-level actions:
// they write locally and return immediately, leaving the network to the
// reconciliation loops and to fire-and-forget hints.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/logging"
	"github.com/ageniuscoder/tradechat/internal/negotiation"
	"github.com/ageniuscoder/tradechat/internal/presence"
	"github.com/ageniuscoder/tradechat/internal/reconcile"
	"github.com/ageniuscoder/tradechat/internal/remote"
	"github.com/ageniuscoder/tradechat/internal/store"
)

const DefaultMaxImageBytes = 5 * 1024 * 1024

type Identity struct {
	UserID    int64
	Name      string
	AvatarRef string
}

type Options struct {
	Reconcile       reconcile.Config
	TypingWindow    time.Duration
	FreshnessWindow time.Duration
	HintCapacity    int
	MaxImageBytes   int
	ContactRegion   string
	Now             func() time.Time
}

// TypingSink forwards local keystrokes to the counterparty.
type TypingSink interface {
	SendTyping(conversationID string) error
}

type Session struct {
	me      Identity
	opts    Options
	now     func() time.Time
	store   *store.Store
	gateway remote.Gateway
	tracker *presence.Tracker
	machine *negotiation.Machine
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	loops    map[reconcile.View]*reconcile.Reconciler
	chatPeer int64
	typing   TypingSink
	notifies sync.WaitGroup
}

func New(ctx context.Context, me Identity, st *store.Store, gw remote.Gateway, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = DefaultMaxImageBytes
	}
	if opts.HintCapacity <= 0 {
		opts.HintCapacity = presence.DefaultHintCapacity
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		me:      me,
		opts:    opts,
		now:     opts.Now,
		store:   st,
		gateway: gw,
		logger:  logging.WithUser("session", me.UserID),
		ctx:     ctx,
		cancel:  cancel,
		loops:   make(map[reconcile.View]*reconcile.Reconciler),
	}
	s.tracker = presence.NewTracker(st,
		presence.WithNow(opts.Now),
		presence.WithTypingWindow(opts.TypingWindow),
		presence.WithFreshnessWindow(opts.FreshnessWindow),
		presence.WithHintQueue(presence.NewHintQueue(opts.HintCapacity)),
	)
	mopts := []negotiation.Option{
		negotiation.WithNotifier(s),
		negotiation.WithNow(opts.Now),
	}
	if opts.ContactRegion != "" {
		mopts = append(mopts, negotiation.WithContactRegion(opts.ContactRegion))
	}
	s.machine = negotiation.New(st, mopts...)
	for _, id := range st.Blocked() {
		s.tracker.Block(me.UserID, id)
	}
	return s
}

func (s *Session) Me() Identity { return s.me }

func (s *Session) Store() *store.Store { return s.store }

func (s *Session) Tracker() *presence.Tracker { return s.tracker }

// OpenChat starts the fast loop for the conversation with peerID and returns
// what is already known locally.
func (s *Session) OpenChat(peerID int64) ([]chat.Message, error) {
	if err := s.checkPeer(peerID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.chatPeer = peerID
	s.mu.Unlock()
	s.startLoop(reconcile.ViewChat)
	return s.Messages(peerID), nil
}

func (s *Session) CloseChat() {
	s.mu.Lock()
	s.chatPeer = 0
	s.mu.Unlock()
	s.stopLoop(reconcile.ViewChat)
}

// OpenList starts the list loop and clears the unread badge.
func (s *Session) OpenList() map[string][]chat.Message {
	s.tracker.ClearBadge(s.me.UserID)
	s.startLoop(reconcile.ViewList)
	return s.store.AllConversationsFor(s.me.UserID)
}

func (s *Session) CloseList() {
	s.stopLoop(reconcile.ViewList)
}

func (s *Session) StartBackground() {
	s.startLoop(reconcile.ViewBackground)
}

func (s *Session) StopBackground() {
	s.stopLoop(reconcile.ViewBackground)
}

// Running reports whether the loop owned by view is scheduled.
func (s *Session) Running(view reconcile.View) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.loops[view]
	return ok && r.IsRunning()
}

func (s *Session) startLoop(view reconcile.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.loops[view]; ok && r.IsRunning() {
		return
	}
	r := reconcile.New(view, s.opts.Reconcile, s.me.UserID, s.store, s.gateway, s.tracker)
	if err := r.Start(s.ctx); err != nil {
		s.logger.Warn().Err(err).Str("view", string(view)).Msg("could not start reconciler")
		return
	}
	s.loops[view] = r
}

func (s *Session) stopLoop(view reconcile.View) {
	s.mu.Lock()
	r, ok := s.loops[view]
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := r.Stop(); err != nil && !errors.Is(err, reconcile.ErrNotRunning) {
		s.logger.Warn().Err(err).Str("view", string(view)).Msg("could not stop reconciler")
	}
}

// Sync runs one reconciliation pass outside any view and waits for its pushes.
func (s *Session) Sync(ctx context.Context) reconcile.TickResult {
	r := reconcile.New(reconcile.ViewBackground, s.opts.Reconcile, s.me.UserID, s.store, s.gateway, s.tracker)
	res := r.Tick(ctx)
	r.Wait()
	return res
}

func (s *Session) SendText(peerID int64, body string) (chat.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return chat.Message{}, chat.NewValidationError("body", "required", "This field is required.")
	}
	return s.send(peerID, chat.Text{Body: body})
}

// SendImage sends data as an inline data URL.
func (s *Session) SendImage(peerID int64, data []byte) (chat.Message, error) {
	if len(data) == 0 {
		return chat.Message{}, chat.NewValidationError("image", "required", "This field is required.")
	}
	if len(data) > s.opts.MaxImageBytes {
		return chat.Message{}, chat.NewValidationError("image", "max",
			"Must be at most "+strconv.Itoa(s.opts.MaxImageBytes)+" bytes long.")
	}
	ref := "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
	return s.send(peerID, chat.Image{Ref: ref})
}

func (s *Session) send(peerID int64, payload chat.Payload) (chat.Message, error) {
	if err := s.checkPeer(peerID); err != nil {
		return chat.Message{}, err
	}
	id := chat.ConversationID(s.me.UserID, peerID)
	msg := chat.Message{
		ConversationID:    id,
		SenderID:          s.me.UserID,
		SenderDisplayName: s.me.Name,
		SenderAvatarRef:   s.me.AvatarRef,
		SentAt:            s.now().Truncate(time.Millisecond),
		Payload:           payload,
	}
	s.store.Append(id, msg)
	s.NotifyCounterparty(peerID, s.me.UserID, s.me.Name)
	return msg, nil
}

func (s *Session) Messages(peerID int64) []chat.Message {
	return s.store.Get(chat.ConversationID(s.me.UserID, peerID))
}

func (s *Session) Conversations() map[string][]chat.Message {
	return s.store.AllConversationsFor(s.me.UserID)
}

// Propose submits a proposal from the session user.
func (s *Session) Propose(req negotiation.SubmitRequest) (chat.Proposal, error) {
	req.SenderID = s.me.UserID
	if req.SenderName == "" {
		req.SenderName = s.me.Name
	}
	if req.SenderAvatarRef == "" {
		req.SenderAvatarRef = s.me.AvatarRef
	}
	return s.machine.Submit(req)
}

func (s *Session) Accept(proposalID, disclosedContact string) (chat.Proposal, error) {
	return s.machine.Accept(proposalID, s.me.UserID, s.me.Name, disclosedContact)
}

func (s *Session) Reject(proposalID string) (chat.Proposal, error) {
	return s.machine.Reject(proposalID, s.me.UserID, s.me.Name)
}

func (s *Session) Proposal(proposalID string) (chat.Proposal, error) {
	return s.machine.Get(proposalID, s.me.UserID)
}

// Proposals is the proposal inbox: everything the user sent or received.
func (s *Session) Proposals() []chat.Proposal {
	return s.machine.ForUser(s.me.UserID)
}

// SetTypingSink routes Typing calls to sink, usually a relay subscription.
func (s *Session) SetTypingSink(sink TypingSink) {
	s.mu.Lock()
	s.typing = sink
	s.mu.Unlock()
}

// Typing reports a local keystroke in the open chat.
func (s *Session) Typing() {
	s.mu.Lock()
	peer, sink := s.chatPeer, s.typing
	s.mu.Unlock()
	if peer == 0 || sink == nil {
		return
	}
	if err := sink.SendTyping(chat.ConversationID(s.me.UserID, peer)); err != nil {
		s.logger.Debug().Err(err).Msg("typing relay failed")
	}
}

func (s *Session) IsTyping(peerID int64) bool { return s.tracker.IsTyping(peerID) }

func (s *Session) IsOnline(peerID int64) bool { return s.tracker.IsOnline(peerID) }

func (s *Session) UnreadCount() int { return s.tracker.UnreadCount(s.me.UserID) }

func (s *Session) Unread() []string { return s.tracker.Unread(s.me.UserID) }

// Block hides peerID from the unread badge and drops its hints. The block
// list is kept with the local snapshot.
func (s *Session) Block(peerID int64) {
	s.tracker.Block(s.me.UserID, peerID)
	s.store.SetBlocked(peerID, true)
}

func (s *Session) Unblock(peerID int64) {
	s.tracker.Unblock(s.me.UserID, peerID)
	s.store.SetBlocked(peerID, false)
}

func (s *Session) IsBlocked(peerID int64) bool { return s.tracker.IsBlocked(s.me.UserID, peerID) }

// HandleEvent applies one realtime event from the relay.
func (s *Session) HandleEvent(ev chat.Event) {
	switch ev.Type {
	case chat.EventTyping:
		if ev.SenderID != s.me.UserID {
			s.tracker.RecordTyping(ev.SenderID)
		}
	case chat.EventPresence:
		s.tracker.SetPresence(ev.SenderID, ev.Status == "online")
	case chat.EventHint:
		if ev.Hint != nil && ev.Hint.RecipientID == s.me.UserID {
			s.tracker.PushHint(*ev.Hint)
		}
	case chat.EventMessage:
		if ev.Message == nil || !chat.Involves(ev.ConversationID, s.me.UserID) {
			return
		}
		msg, err := ev.Message.Message(ev.ConversationID)
		if err != nil {
			s.logger.Debug().Err(err).Msg("dropping undecodable realtime message")
			return
		}
		s.store.Merge(map[string][]chat.Message{ev.ConversationID: {msg}})
	}
}

// NotifyCounterparty sends a hint without waiting for the result.
func (s *Session) NotifyCounterparty(recipientID, senderID int64, senderName string) {
	s.notifies.Add(1)
	go func() {
		defer s.notifies.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.pushTimeout())
		defer cancel()
		if err := s.gateway.SendNotificationHint(ctx, recipientID, senderID, senderName); err != nil {
			s.logger.Debug().Err(err).Int64("recipient", recipientID).Msg("notification hint not delivered")
		}
	}()
}

// Close stops every loop and waits for in-flight pushes and hints.
func (s *Session) Close() error {
	s.mu.Lock()
	loops := make([]*reconcile.Reconciler, 0, len(s.loops))
	for _, r := range s.loops {
		loops = append(loops, r)
	}
	s.mu.Unlock()

	for _, r := range loops {
		_ = r.Stop()
		r.Wait()
	}
	s.notifies.Wait()
	s.cancel()
	return s.store.Close()
}

func (s *Session) checkPeer(peerID int64) error {
	if peerID <= 0 || peerID == s.me.UserID {
		return chat.NewValidationError("peer", "nefield", "Must be another user.")
	}
	return nil
}

func (s *Session) pushTimeout() time.Duration {
	if s.opts.Reconcile.PushTimeout > 0 {
		return s.opts.Reconcile.PushTimeout
	}
	return reconcile.DefaultConfig().PushTimeout
}
