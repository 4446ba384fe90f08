// Package store holds the local, write-through cache of conversations.
//
// Every mutation is applied in memory first and then persisted as a whole
// snapshot through a Persister, so optimistic writes that have not yet
// reached the remote store survive a restart. Persistence failures are
// logged and never surface to callers: the in-memory state stays
// authoritative for the session.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/logging"
	"github.com/ageniuscoder/tradechat/internal/metrics"
)

// Persister is the durable local medium behind a Store.
// Load returns nil data when nothing was saved yet.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

// StorageError wraps a failed local persistence operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Pending is a locally created message not yet confirmed by the remote store.
type Pending struct {
	ConversationID string
	Message        chat.Message
}

type pendingEntry struct {
	conversationID string
	inflight       bool
}

type Store struct {
	mu            sync.RWMutex
	conversations map[string][]chat.Message
	keys          map[string]map[chat.DedupKey]struct{}
	pending       map[chat.DedupKey]*pendingEntry
	blocked       map[int64]struct{}
	version       uint64

	persister Persister
	saveMu    sync.Mutex
	timeout   time.Duration
	logger    zerolog.Logger
}

// New creates a store and restores the last persisted snapshot. A nil
// persister keeps the store purely in memory.
func New(ctx context.Context, p Persister) *Store {
	s := &Store{
		conversations: make(map[string][]chat.Message),
		keys:          make(map[string]map[chat.DedupKey]struct{}),
		pending:       make(map[chat.DedupKey]*pendingEntry),
		blocked:       make(map[int64]struct{}),
		persister:     p,
		timeout:       5 * time.Second,
		logger:        logging.Component("store"),
	}
	if p == nil {
		return s
	}
	data, err := p.Load(ctx)
	if err != nil {
		s.storageFailed(&StorageError{Op: "load", Err: err})
		return s
	}
	if len(data) > 0 {
		if err := s.restore(data); err != nil {
			s.storageFailed(&StorageError{Op: "decode", Err: err})
		}
	}
	return s
}

// Append inserts a locally created message and flags it for pushing.
// It never fails; a message whose dedup key is already present is ignored.
func (s *Store) Append(conversationID string, msg chat.Message) {
	msg.ConversationID = conversationID
	key := msg.Key()

	s.mu.Lock()
	if s.hasLocked(conversationID, key) {
		s.mu.Unlock()
		return
	}
	s.insertLocked(conversationID, msg, key)
	chat.SortBySentAt(s.conversations[conversationID])
	s.pending[key] = &pendingEntry{conversationID: conversationID}
	s.version++
	s.mu.Unlock()

	s.persist()
}

// MergeResult summarizes one Merge call.
type MergeResult struct {
	Added     int
	Confirmed int
	Touched   []string
}

// Merge folds a remote snapshot into the store. Messages whose dedup key is
// already known are skipped, so merging the same snapshot twice is a no-op.
// A remote copy of a pending local message confirms it.
func (s *Store) Merge(snapshot map[string][]chat.Message) MergeResult {
	var res MergeResult

	s.mu.Lock()
	for id, msgs := range snapshot {
		added := 0
		for _, m := range msgs {
			m.ConversationID = id
			key := m.Key()
			if e, ok := s.pending[key]; ok && e.conversationID == id {
				delete(s.pending, key)
				res.Confirmed++
			}
			if s.hasLocked(id, key) {
				continue
			}
			s.insertLocked(id, m, key)
			added++
		}
		if added > 0 {
			chat.SortBySentAt(s.conversations[id])
			res.Touched = append(res.Touched, id)
			res.Added += added
		}
	}
	changed := res.Added > 0 || res.Confirmed > 0
	if changed {
		s.version++
	}
	s.mu.Unlock()

	if changed {
		s.persist()
	}
	return res
}

// ReplaceAll swaps the whole store for snapshot. Pending local messages the
// snapshot does not contain are carried over so optimistic writes are kept.
func (s *Store) ReplaceAll(snapshot map[string][]chat.Message) {
	s.mu.Lock()
	old := s.conversations
	s.conversations = make(map[string][]chat.Message, len(snapshot))
	s.keys = make(map[string]map[chat.DedupKey]struct{}, len(snapshot))
	for id, msgs := range snapshot {
		for _, m := range msgs {
			m.ConversationID = id
			key := m.Key()
			if s.hasLocked(id, key) {
				continue
			}
			s.insertLocked(id, m, key)
		}
	}
	for key, e := range s.pending {
		if s.hasLocked(e.conversationID, key) {
			delete(s.pending, key)
			continue
		}
		for _, m := range old[e.conversationID] {
			if m.Key() == key {
				s.insertLocked(e.conversationID, m, key)
				break
			}
		}
	}
	for id := range s.conversations {
		chat.SortBySentAt(s.conversations[id])
	}
	s.version++
	s.mu.Unlock()

	s.persist()
}

// Get returns the conversation in sentAt order.
func (s *Store) Get(conversationID string) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Message(nil), s.conversations[conversationID]...)
}

// AllConversationsFor returns every conversation userID takes part in.
func (s *Store) AllConversationsFor(userID int64) map[string][]chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]chat.Message)
	for id, msgs := range s.conversations {
		if chat.Involves(id, userID) {
			out[id] = append([]chat.Message(nil), msgs...)
		}
	}
	return out
}

// Has reports whether a message with key is stored in the conversation.
func (s *Store) Has(conversationID string, key chat.DedupKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasLocked(conversationID, key)
}

// Version changes whenever the store content changes.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ClaimPending returns the pending messages that no push is currently
// carrying and marks them in flight.
func (s *Store) ClaimPending() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Pending
	for key, e := range s.pending {
		if e.inflight {
			continue
		}
		for _, m := range s.conversations[e.conversationID] {
			if m.Key() == key {
				out = append(out, Pending{ConversationID: e.conversationID, Message: m})
				e.inflight = true
				break
			}
		}
	}
	return out
}

// Release ends an in-flight push. A successful push clears the pending flag;
// a failed one leaves it for the next tick.
func (s *Store) Release(key chat.DedupKey, pushed bool) {
	s.mu.Lock()
	e, ok := s.pending[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	if !pushed {
		e.inflight = false
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.version++
	s.mu.Unlock()

	s.persist()
}

func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

func (s *Store) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Close()
}

func (s *Store) hasLocked(id string, key chat.DedupKey) bool {
	_, ok := s.keys[id][key]
	return ok
}

func (s *Store) insertLocked(id string, m chat.Message, key chat.DedupKey) {
	if s.keys[id] == nil {
		s.keys[id] = make(map[chat.DedupKey]struct{})
	}
	s.keys[id][key] = struct{}{}
	s.conversations[id] = append(s.conversations[id], m)
}

type snapshotFile struct {
	Version       int                      `json:"version"`
	Conversations map[string][]chat.Record `json:"conversations"`
	Pending       []pendingRef             `json:"pending,omitempty"`
	Blocked       []int64                  `json:"blocked,omitempty"`
}

type pendingRef struct {
	ConversationID string `json:"conversationId"`
	Key            string `json:"key"`
}

// SetBlocked adds userID to or removes it from the local user's block list.
func (s *Store) SetBlocked(userID int64, blocked bool) {
	s.mu.Lock()
	_, was := s.blocked[userID]
	if was == blocked {
		s.mu.Unlock()
		return
	}
	if blocked {
		s.blocked[userID] = struct{}{}
	} else {
		delete(s.blocked, userID)
	}
	s.mu.Unlock()

	s.persist()
}

// Blocked returns the block list in ascending order.
func (s *Store) Blocked() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blockedLocked()
}

func (s *Store) blockedLocked() []int64 {
	if len(s.blocked) == 0 {
		return nil
	}
	out := make([]int64, 0, len(s.blocked))
	for id := range s.blocked {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// persist writes the current state. saveMu is held while the snapshot is
// taken, so the last completed save is never older than an earlier one.
func (s *Store) persist() {
	if s.persister == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	data, err := s.encode()
	if err != nil {
		s.storageFailed(&StorageError{Op: "encode", Err: err})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.persister.Save(ctx, data); err != nil {
		s.storageFailed(&StorageError{Op: "save", Err: err})
	}
}

func (s *Store) encode() ([]byte, error) {
	s.mu.RLock()
	file := snapshotFile{
		Version:       1,
		Conversations: make(map[string][]chat.Record, len(s.conversations)),
	}
	for id, msgs := range s.conversations {
		recs := make([]chat.Record, 0, len(msgs))
		for _, m := range msgs {
			recs = append(recs, m.Record())
		}
		file.Conversations[id] = recs
	}
	for key, e := range s.pending {
		file.Pending = append(file.Pending, pendingRef{ConversationID: e.conversationID, Key: key.String()})
	}
	file.Blocked = s.blockedLocked()
	s.mu.RUnlock()
	return json.Marshal(file)
}

func (s *Store) restore(data []byte) error {
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	convs, errs := chat.DecodeConversations(file.Conversations)
	for _, err := range errs {
		s.logger.Warn().Err(err).Msg("skipping undecodable record in local snapshot")
	}

	wanted := make(map[string]string, len(file.Pending))
	for _, p := range file.Pending {
		wanted[p.Key] = p.ConversationID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range file.Blocked {
		s.blocked[id] = struct{}{}
	}
	for id, msgs := range convs {
		for _, m := range msgs {
			key := m.Key()
			if s.hasLocked(id, key) {
				continue
			}
			s.insertLocked(id, m, key)
			if conv, ok := wanted[key.String()]; ok && conv == id {
				s.pending[key] = &pendingEntry{conversationID: id}
			}
		}
		chat.SortBySentAt(s.conversations[id])
	}
	return nil
}

func (s *Store) storageFailed(err *StorageError) {
	metrics.StorageErrors.WithLabelValues(err.Op).Inc()
	s.logger.Warn().Err(err).Msg("local persistence failed; keeping in-memory state")
}
