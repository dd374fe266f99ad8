package notify

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
)

// ErrNoToken is returned when LINE is used without a channel access token.
var ErrNoToken = errors.New("line channel access token not configured")

// StatusError is a non-2xx answer from the LINE API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("line api error %d: %s", e.StatusCode, e.Body)
}

// Message is a LINE message object.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextMessage builds a plain text message.
func TextMessage(text string) Message {
	return Message{Type: "text", Text: text}
}

type pushRequest struct {
	To       string    `json:"to"`
	Messages []Message `json:"messages"`
}

// LineClient calls the LINE Messaging API push endpoint.
type LineClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewLineClient creates a client with a short timeout.
func NewLineClient(baseURL, token string) *LineClient {
	if baseURL == "" {
		baseURL = "https://api.line.me"
	}
	return &LineClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Push sends messages to a LINE user.
func (c *LineClient) Push(ctx context.Context, to string, messages ...Message) error {
	if c.Token == "" {
		return ErrNoToken
	}
	body, err := json.Marshal(pushRequest{To: to, Messages: messages})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/bot/message/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Dispatch pushes the queue-called text to the target user.
func (c *LineClient) Dispatch(ctx context.Context, msg QueueCalled) error {
	return c.Push(ctx, msg.TargetUserID, TextMessage(msg.Text()))
}

// Retryable reports whether a failed push is worth another attempt.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrNoToken) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}
