package feature

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/httpx"
)

type Service struct {
	Hub *chat.Hub
}

func Register(rg *gin.RouterGroup, hub *chat.Hub) {
	s := Service{
		Hub: hub,
	}
	rg.GET("/users/:id/last-seen", s.getLastSeen)
}

func (s Service) getLastSeen(c *gin.Context) {
	userIDStr := c.Param("id")
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	lastActive, ok := s.Hub.LastActive(userID)
	if !ok {
		httpx.Err(c, http.StatusNotFound, "user not seen yet")
		return
	}

	httpx.OK(c, gin.H{
		"success":   true,
		"online":    s.Hub.Online(userID),
		"last_seen": lastActive.UTC().Format(time.RFC3339),
	})
}
