package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vlad23451/syrup/internal/history"
)

const requestTimeout = 15 * time.Second

// Client talks to the REST history and file collaborators. The websocket
// gateway is the write path; this client only reads history and uploads
// files, so it keeps working while the socket is down.
type Client struct {
	baseURL string
	token   string
	userID  int64
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL, token string, userID int64, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		userID:  userID,
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger.Named("rest"),
	}
}

// messageDTO mirrors the history service's message representation. is_read
// is optional; absence maps to the unknown read state.
type messageDTO struct {
	ID            int64   `json:"id"`
	ClientID      string  `json:"client_id,omitempty"`
	ChatID        int64   `json:"chat_id"`
	SenderID      int64   `json:"sender_id"`
	Text          string  `json:"text"`
	AttachmentIDs []int64 `json:"attachment_ids,omitempty"`
	Timestamp     int64   `json:"timestamp"`
	IsRead        *bool   `json:"is_read,omitempty"`
	Pinned        bool    `json:"pinned,omitempty"`
}

func (d messageDTO) toMessage(userID int64) history.Message {
	read := history.ReadUnknown
	if d.IsRead != nil {
		if *d.IsRead {
			read = history.Read
		} else {
			read = history.Unread
		}
	}
	return history.Message{
		ID:            d.ID,
		ClientID:      d.ClientID,
		ChatID:        d.ChatID,
		SenderID:      d.SenderID,
		Text:          d.Text,
		AttachmentIDs: d.AttachmentIDs,
		Timestamp:     d.Timestamp,
		FromMe:        d.SenderID == userID,
		Read:          read,
		Pinned:        d.Pinned,
	}
}

// MessagesByChat fetches a page of messages newest first.
func (c *Client) MessagesByChat(ctx context.Context, chatID int64, skip, limit int) ([]history.Message, error) {
	q := url.Values{}
	q.Set("chat_id", strconv.FormatInt(chatID, 10))
	return c.messages(ctx, q, skip, limit)
}

// MessagesByCompanion fetches history addressed by the peer's user id, for
// chats whose id is not yet known.
func (c *Client) MessagesByCompanion(ctx context.Context, companionID int64, skip, limit int) ([]history.Message, error) {
	q := url.Values{}
	q.Set("companion_id", strconv.FormatInt(companionID, 10))
	return c.messages(ctx, q, skip, limit)
}

// MessagesByLogin fetches history addressed by the peer's login. Last-resort
// addressing mode; the service resolves the login server-side.
func (c *Client) MessagesByLogin(ctx context.Context, login string, skip, limit int) ([]history.Message, error) {
	q := url.Values{}
	q.Set("login", login)
	return c.messages(ctx, q, skip, limit)
}

func (c *Client) messages(ctx context.Context, q url.Values, skip, limit int) ([]history.Message, error) {
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	var dtos []messageDTO
	if err := c.get(ctx, "/messages", q, &dtos); err != nil {
		return nil, err
	}
	out := make([]history.Message, len(dtos))
	for i, d := range dtos {
		out[i] = d.toMessage(c.userID)
	}
	return out, nil
}

// PinnedMessages fetches the pinned subset for a chat.
func (c *Client) PinnedMessages(ctx context.Context, chatID int64) ([]history.Message, error) {
	q := url.Values{}
	q.Set("chat_id", strconv.FormatInt(chatID, 10))
	var dtos []messageDTO
	if err := c.get(ctx, "/messages/pinned", q, &dtos); err != nil {
		return nil, err
	}
	out := make([]history.Message, len(dtos))
	for i, d := range dtos {
		out[i] = d.toMessage(c.userID)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("rest: GET %s: status %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
