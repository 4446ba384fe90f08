package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/logging"
)

// Client is the HTTP Gateway against a tradechat relay.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *fasthttp.Client
	logger  zerolog.Logger
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                "tradechat",
			MaxIdleConnDuration: 30 * time.Second,
		},
		logger: logging.Component("remote"),
	}
}

func (c *Client) ListConversations(ctx context.Context, userID int64) (map[string][]chat.Message, error) {
	var resp chat.ConversationsResponse
	path := "/api/conversations?userId=" + strconv.FormatInt(userID, 10)
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	convs, errs := chat.DecodeConversations(resp.Conversations)
	for _, err := range errs {
		c.logger.Warn().Err(err).Msg("skipping undecodable remote record")
	}
	return convs, nil
}

func (c *Client) AppendMessage(ctx context.Context, conversationID string, msg chat.Message, senderID, recipientID int64) error {
	req := chat.AppendRequest{
		ChatID:      conversationID,
		Message:     msg.Record(),
		SenderID:    senderID,
		RecipientID: recipientID,
	}
	return c.do(ctx, fasthttp.MethodPost, "/api/conversations", req, nil)
}

func (c *Client) SendNotificationHint(ctx context.Context, recipientID, senderID int64, senderName string) error {
	req := chat.NotifyRequest{
		RecipientID: recipientID,
		SenderID:    senderID,
		SenderName:  senderName,
	}
	return c.do(ctx, fasthttp.MethodPost, "/api/notify", req, nil)
}

func (c *Client) PendingHints(ctx context.Context, recipientID int64) ([]chat.Hint, error) {
	var resp chat.HintsResponse
	path := "/api/notify?userId=" + strconv.FormatInt(recipientID, 10)
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Hints, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetworkUnavailable, method, path, err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(b)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetworkUnavailable, method, path, err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrNetworkUnavailable, method, path, code, strings.TrimSpace(string(resp.Body())))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: %s %s: decode: %v", ErrNetworkUnavailable, method, path, err)
	}
	return nil
}
