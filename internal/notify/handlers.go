// Package notify relays "you have a new message" hints between users.
// Hints are ephemeral: they live in a capped in-memory queue and are also
// pushed over the websocket when the recipient is connected.
package notify

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ageniuscoder/tradechat/internal/auth"
	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/httpx"
	"github.com/ageniuscoder/tradechat/internal/metrics"
	"github.com/ageniuscoder/tradechat/internal/presence"
)

type Service struct {
	Hints *presence.HintQueue
	Hub   *chat.Hub
	now   func() time.Time
}

func Register(rg *gin.RouterGroup, hints *presence.HintQueue, hub *chat.Hub) {
	s := &Service{
		Hints: hints,
		Hub:   hub,
		now:   func() time.Time { return time.Now().UTC() },
	}
	rg.POST("/notify", s.send)
	rg.GET("/notify", s.pending)
}

func (s *Service) send(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req chat.NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BindErr(c, err)
		return
	}
	if req.SenderID != uid {
		httpx.Err(c, http.StatusForbidden, "sender must be the authenticated user")
		return
	}
	if req.RecipientID == uid {
		httpx.Err(c, http.StatusBadRequest, "cannot notify yourself")
		return
	}
	if req.SenderName == "" {
		req.SenderName = auth.UserName(c)
	}

	hint := chat.Hint{
		RecipientID: req.RecipientID,
		SenderID:    req.SenderID,
		SenderName:  req.SenderName,
		Timestamp:   s.now(),
	}
	if s.Hints.Push(hint) {
		metrics.RelayHints.Inc()
		if s.Hub != nil {
			s.Hub.BroadcastHint(hint)
		}
	}
	httpx.OK(c, gin.H{"success": true})
}

func (s *Service) pending(c *gin.Context) {
	uid := auth.MustUserID(c)
	if q := c.Query("userId"); q != "" {
		requested, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			httpx.Err(c, http.StatusBadRequest, "invalid userId")
			return
		}
		if requested != uid {
			httpx.Err(c, http.StatusForbidden, "can only read your own hints")
			return
		}
	}
	hints := s.Hints.For(uid, time.Time{})
	if hints == nil {
		hints = []chat.Hint{}
	}
	httpx.OK(c, chat.HintsResponse{Hints: hints})
}
