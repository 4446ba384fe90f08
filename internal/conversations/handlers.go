// Package conversations serves the relay's conversation documents: the
// remote store that clients pull from and push to.
package conversations

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ageniuscoder/tradechat/internal/auth"
	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/httpx"
	"github.com/ageniuscoder/tradechat/internal/logging"
	"github.com/ageniuscoder/tradechat/internal/metrics"
)

// Store is the relay's document store.
type Store interface {
	ListConversations(ctx context.Context, userID int64) (map[string][]chat.Record, error)
	// AppendMessage stores rec unless a record with the same dedup key
	// exists, and reports whether it was stored.
	AppendMessage(ctx context.Context, conversationID string, rec chat.Record) (bool, error)
}

type Service struct {
	Store  Store
	Hub    *chat.Hub
	logger zerolog.Logger
}

func Register(rg *gin.RouterGroup, store Store, hub *chat.Hub) {
	s := &Service{
		Store:  store,
		Hub:    hub,
		logger: logging.Component("conversations"),
	}
	rg.GET("/conversations", s.list)
	rg.POST("/conversations", s.append)
}

func (s *Service) list(c *gin.Context) {
	uid := auth.MustUserID(c)
	if q := c.Query("userId"); q != "" {
		requested, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			httpx.Err(c, http.StatusBadRequest, "invalid userId")
			return
		}
		if requested != uid {
			httpx.Err(c, http.StatusForbidden, "can only list your own conversations")
			return
		}
	}

	convs, err := s.Store.ListConversations(c.Request.Context(), uid)
	if err != nil {
		s.logger.Error().Err(err).Int64("user", uid).Msg("list conversations failed")
		httpx.Err(c, http.StatusInternalServerError, "failed to fetch conversations")
		return
	}
	if convs == nil {
		convs = map[string][]chat.Record{}
	}
	if s.Hub != nil {
		s.Hub.Touch(uid)
	}
	httpx.OK(c, chat.ConversationsResponse{Conversations: convs})
}

func (s *Service) append(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req chat.AppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BindErr(c, err)
		return
	}

	if req.SenderID != uid || req.Message.SenderID != uid {
		httpx.Err(c, http.StatusForbidden, "sender must be the authenticated user")
		return
	}
	if req.RecipientID == uid || chat.ConversationID(req.SenderID, req.RecipientID) != req.ChatID {
		httpx.Err(c, http.StatusBadRequest, "chatId does not match sender and recipient")
		return
	}
	if _, err := req.Message.Message(req.ChatID); err != nil {
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := s.Store.AppendMessage(c.Request.Context(), req.ChatID, req.Message)
	if err != nil {
		s.logger.Error().Err(err).Str("conversation", req.ChatID).Msg("append failed")
		httpx.Err(c, http.StatusInternalServerError, "failed to store message")
		return
	}

	if stored {
		metrics.RelayAppends.WithLabelValues("stored").Inc()
		if s.Hub != nil {
			s.Hub.BroadcastMessage(req.ChatID, req.Message)
		}
	} else {
		metrics.RelayAppends.WithLabelValues("duplicate").Inc()
	}
	if s.Hub != nil {
		s.Hub.Touch(uid)
	}
	httpx.OK(c, gin.H{"success": true, "stored": stored})
}
