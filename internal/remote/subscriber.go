package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ageniuscoder/tradechat/internal/chat"
)

const subscribeWriteWait = 10 * time.Second

// Subscription is a live websocket feed of realtime events from the relay.
type Subscription struct {
	conn *websocket.Conn
	done chan struct{}

	writeMu sync.Mutex
	once    sync.Once
}

// Subscribe dials the relay's /ws endpoint and calls handle for every event
// until ctx ends or the connection breaks.
func (c *Client) Subscribe(ctx context.Context, handle func(chat.Event)) (*Subscription, error) {
	url := c.baseURL + "/ws"
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrNetworkUnavailable, url, err)
	}

	s := &Subscription{conn: conn, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	go s.readLoop(handle)
	return s, nil
}

func (s *Subscription) readLoop(handle func(chat.Event)) {
	defer s.Close()
	for {
		var ev chat.Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			return
		}
		handle(ev)
	}
}

// SendTyping tells the counterparty of conversationID that the local user is typing.
func (s *Subscription) SendTyping(conversationID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(subscribeWriteWait))
	return s.conn.WriteJSON(chat.Event{Type: chat.EventTyping, ConversationID: conversationID})
}

// Done is closed once the subscription ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
