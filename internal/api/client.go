package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"molva/internal/models"
)

// Client talks to the CRM backend's REST surface. It is used for initial
// history loads in both transport modes and for message creation in polling
// mode.
type Client struct {
	baseURL    string
	credential string
	http       *http.Client
}

func NewClient(baseURL, credential string) *Client {
	return &Client{
		baseURL:    baseURL,
		credential: credential,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

// SendRequest is the body of a create-message call.
type SendRequest struct {
	RecipientID string              `json:"recipientId,omitempty"`
	Content     string              `json:"content"`
	Kind        models.MessageKind  `json:"kind"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	ReplyToID   string              `json:"replyTo,omitempty"`
}

func (c *Client) Channels(ctx context.Context) ([]models.Conversation, error) {
	var channels []models.Conversation
	if err := c.get(ctx, "/channels", &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func (c *Client) ChannelMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	var messages []models.Message
	if err := c.get(ctx, "/channels/"+channelID+"/messages", &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) PostChannelMessage(ctx context.Context, channelID string, req SendRequest) (models.Message, error) {
	var msg models.Message
	if err := c.post(ctx, "/channels/"+channelID+"/messages", req, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (c *Client) DirectMessages(ctx context.Context, peerID string) ([]models.Message, error) {
	var messages []models.Message
	if err := c.get(ctx, "/direct-messages/"+peerID, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) PostDirectMessage(ctx context.Context, req SendRequest) (models.Message, error) {
	var msg models.Message
	if err := c.post(ctx, "/direct-messages", req, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.credential)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return models.ErrAuthFailed
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
