// Package metrics exposes prometheus collectors for reconciliation and the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradechat",
		Subsystem: "sync",
		Name:      "ticks_total",
		Help:      "Reconciliation ticks by view and outcome.",
	}, []string{"view", "outcome"})

	MergedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tradechat",
		Subsystem: "sync",
		Name:      "merged_messages_total",
		Help:      "Remote messages newly merged into the local store.",
	})

	Pushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradechat",
		Subsystem: "sync",
		Name:      "pushes_total",
		Help:      "Best-effort pushes of pending local messages by outcome.",
	}, []string{"outcome"})

	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradechat",
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Local persistence failures by operation.",
	}, []string{"op"})

	RelayAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradechat",
		Subsystem: "relay",
		Name:      "appends_total",
		Help:      "Messages received by the relay, split into stored and duplicate.",
	}, []string{"result"})

	RelayHints = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tradechat",
		Subsystem: "relay",
		Name:      "hints_total",
		Help:      "Notification hints accepted by the relay.",
	})
)
