// Package reconcile keeps the local store eventually consistent with the
// remote conversation store.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/logging"
	"github.com/ageniuscoder/tradechat/internal/metrics"
	"github.com/ageniuscoder/tradechat/internal/remote"
	"github.com/ageniuscoder/tradechat/internal/store"
)

// Reconciler errors.
var (
	ErrAlreadyRunning = errors.New("reconciler already running")
	ErrNotRunning     = errors.New("reconciler not running")
)

// View names the UI surface that owns a reconciliation loop.
type View string

const (
	ViewChat       View = "chat"
	ViewList       View = "list"
	ViewBackground View = "background"
)

// Config holds the per-view cadence.
type Config struct {
	// ChatInterval applies while a conversation is open.
	// Default: 1s
	ChatInterval time.Duration

	// ListInterval applies while only the conversation list is open.
	// Default: 3s
	ListInterval time.Duration

	// BackgroundInterval applies to background refresh.
	// Default: 30s
	BackgroundInterval time.Duration

	// PushTimeout bounds a single best-effort push.
	// Default: 10s
	PushTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ChatInterval:       time.Second,
		ListInterval:       3 * time.Second,
		BackgroundInterval: 30 * time.Second,
		PushTimeout:        10 * time.Second,
	}
}

func (c Config) Interval(v View) time.Duration {
	def := DefaultConfig()
	pick := func(d, fallback time.Duration) time.Duration {
		if d > 0 {
			return d
		}
		return fallback
	}
	switch v {
	case ViewChat:
		return pick(c.ChatInterval, def.ChatInterval)
	case ViewList:
		return pick(c.ListInterval, def.ListInterval)
	default:
		return pick(c.BackgroundInterval, def.BackgroundInterval)
	}
}

// HintSink receives notification hints pulled from the remote store.
type HintSink interface {
	PushHint(h chat.Hint) bool
}

// TickResult summarizes one reconciliation pass.
type TickResult struct {
	Added     int
	Confirmed int
	Pushes    int
	Err       error
}

// Reconciler is a cancellable periodic task owned by one view.
type Reconciler struct {
	view        View
	interval    time.Duration
	pushTimeout time.Duration
	userID      int64
	store       *store.Store
	gateway     remote.Gateway
	hints       HintSink
	logger      zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pushes  sync.WaitGroup
}

// New creates a reconciler for userID. hints may be nil.
func New(view View, cfg Config, userID int64, st *store.Store, gw remote.Gateway, hints HintSink) *Reconciler {
	pushTimeout := cfg.PushTimeout
	if pushTimeout <= 0 {
		pushTimeout = DefaultConfig().PushTimeout
	}
	return &Reconciler{
		view:        view,
		interval:    cfg.Interval(view),
		pushTimeout: pushTimeout,
		userID:      userID,
		store:       st,
		gateway:     gw,
		hints:       hints,
		logger:      logging.WithUser("reconcile", userID).With().Str("view", string(view)).Logger(),
	}
}

func (r *Reconciler) View() View { return r.view }

func (r *Reconciler) Interval() time.Duration { return r.interval }

// Start runs one tick immediately and then one per interval until Stop.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.logger.Debug().Dur("interval", r.interval).Msg("reconciler starting")

	r.wg.Add(1)
	go r.runLoop(loopCtx)
	return nil
}

// Stop cancels the timer. Pushes already in flight are left to finish.
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Debug().Msg("reconciler stopped")
	return nil
}

func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Wait blocks until every push started so far has finished.
func (r *Reconciler) Wait() {
	r.pushes.Wait()
}

func (r *Reconciler) runLoop(ctx context.Context) {
	defer r.wg.Done()

	r.Tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick pulls the remote snapshot, merges it, refreshes hints and starts
// pushes for pending local messages. A failed pull leaves the tick
// local-only; nothing is returned to the user beyond the result summary.
func (r *Reconciler) Tick(ctx context.Context) TickResult {
	var res TickResult

	snapshot, err := r.gateway.ListConversations(ctx, r.userID)
	if err != nil {
		res.Err = err
		metrics.SyncTicks.WithLabelValues(string(r.view), "offline").Inc()
		r.logger.Debug().Err(err).Msg("pull failed; staying local-only for this tick")
		return res
	}

	merged := r.store.Merge(snapshot)
	res.Added = merged.Added
	res.Confirmed = merged.Confirmed
	if merged.Added > 0 {
		metrics.MergedMessages.Add(float64(merged.Added))
		r.logger.Debug().Int("added", merged.Added).Strs("conversations", merged.Touched).Msg("merged remote messages")
	}

	if r.hints != nil {
		if hints, err := r.gateway.PendingHints(ctx, r.userID); err == nil {
			for _, h := range hints {
				r.hints.PushHint(h)
			}
		} else {
			r.logger.Debug().Err(err).Msg("hint pull failed")
		}
	}

	res.Pushes = r.pushPending(ctx)
	metrics.SyncTicks.WithLabelValues(string(r.view), "ok").Inc()
	return res
}

// pushPending starts one push per pending message without waiting for them.
func (r *Reconciler) pushPending(ctx context.Context) int {
	pending := r.store.ClaimPending()
	for _, p := range pending {
		r.pushes.Add(1)
		go r.push(context.WithoutCancel(ctx), p)
	}
	return len(pending)
}

func (r *Reconciler) push(ctx context.Context, p store.Pending) {
	defer r.pushes.Done()

	key := p.Message.Key()
	recipient, err := chat.Counterparty(p.ConversationID, p.Message.SenderID)
	if err != nil {
		r.logger.Warn().Err(err).Str("conversation", p.ConversationID).Msg("cannot push message")
		r.store.Release(key, false)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.pushTimeout)
	defer cancel()
	err = r.gateway.AppendMessage(ctx, p.ConversationID, p.Message, p.Message.SenderID, recipient)
	r.store.Release(key, err == nil)
	if err != nil {
		metrics.Pushes.WithLabelValues("failed").Inc()
		r.logger.Debug().Err(err).Str("conversation", p.ConversationID).Msg("push failed; will retry next tick")
		return
	}
	metrics.Pushes.WithLabelValues("ok").Inc()
}
