// Package client is the Go client for the messenger API: an HTTP surface for
// snapshots and mutations plus a websocket feed for realtime events. It is
// what cmd/messenger drives and what the reconcile controller plugs into.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/yourorg/messenger/internal/apperr"
	"github.com/yourorg/messenger/internal/models"
)

// Client talks to one messenger server on behalf of one user. Mutations run
// through a circuit breaker so a dying server fails fast instead of piling up
// optimistic rollbacks behind slow timeouts.
type Client struct {
	baseURL string
	httpc   *http.Client
	token   string
	breaker *gobreaker.CircuitBreaker
	log     *zap.SugaredLogger
}

func New(baseURL string, log *zap.SugaredLogger) *Client {
	st := gobreaker.Settings{
		Name:     "messenger-api",
		Interval: time.Minute,
		Timeout:  15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infow("breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(st),
		log:     log,
	}
}

// Token returns the bearer token from the last successful Login.
func (c *Client) Token() string { return c.token }

// SetToken installs a previously issued token, skipping Login.
func (c *Client) SetToken(tok string) { c.token = tok }

type loginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	var u models.User
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/register", body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Login authenticates and remembers the bearer token for every later call.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	var resp loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/login", body, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp.User, nil
}

// Snapshot fetches every conversation visible to the caller. A missing or
// expired session yields an empty list rather than an error, so callers can
// render a signed-out view without special-casing.
func (c *Client) Snapshot(ctx context.Context) ([]models.Conversation, error) {
	req, err := c.request(ctx, http.MethodGet, "/api/conversations", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return []models.Conversation{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var convs []models.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&convs); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return convs, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID, body string) (models.Message, error) {
	var msg models.Message
	payload := map[string]string{"conversation_id": conversationID, "body": body}
	err := c.mutate(ctx, http.MethodPost, "/api/messages", payload, &msg)
	return msg, err
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.mutate(ctx, http.MethodDelete, "/api/messages/"+messageID, nil, nil)
}

func (c *Client) ClearChat(ctx context.Context, conversationID string) error {
	return c.mutate(ctx, http.MethodDelete, "/api/conversations/"+conversationID+"/messages", nil, nil)
}

func (c *Client) CreateDirect(ctx context.Context, otherUserID string) (*models.Conversation, error) {
	var conv models.Conversation
	payload := map[string]any{"user_id": otherUserID}
	if err := c.mutate(ctx, http.MethodPost, "/api/conversations", payload, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []string) (*models.Conversation, error) {
	var conv models.Conversation
	payload := map[string]any{"is_group": true, "name": name, "member_ids": memberIDs}
	if err := c.mutate(ctx, http.MethodPost, "/api/conversations", payload, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.mutate(ctx, http.MethodDelete, "/api/conversations/"+conversationID, nil, nil)
}

func (c *Client) MarkSeen(ctx context.Context, conversationID string) error {
	return c.mutate(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/seen", nil, nil)
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// mutate runs a state-changing call through the breaker. 4xx responses count
// as successes for the breaker: the server is healthy, the request was wrong.
func (c *Client) mutate(ctx context.Context, method, path string, body, out any) error {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		err := c.do(ctx, method, path, body, out)
		if err != nil && !isServerFault(err) {
			// healthy server, wrong request: a success as far as the breaker cares
			return err, nil
		}
		return nil, err
	})
	if err != nil {
		return err
	}
	if resErr, ok := res.(error); ok {
		return resErr
	}
	return nil
}

func isServerFault(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return true // transport failure
	}
	return se.Code >= 500
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.request(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// StatusError carries a non-2xx HTTP status and the server's error text.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Unwrap maps common statuses onto the shared sentinel errors so callers can
// use errors.Is without knowing HTTP.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return apperr.ErrNotFound
	case http.StatusUnauthorized:
		return apperr.ErrUnauthorized
	case http.StatusForbidden:
		return apperr.ErrForbidden
	case http.StatusBadRequest:
		return apperr.ErrBadRequest
	case http.StatusTooManyRequests:
		return apperr.ErrRateLimited
	default:
		return apperr.ErrInternal
	}
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}
