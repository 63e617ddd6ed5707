// Package client is a small HTTP client for a rowq server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a rowq server.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Message is a queue record as returned by the server. Handle is set only on
// records obtained through Receive.
type Message struct {
	ID             int64      `json:"id"`
	Queue          string     `json:"queue"`
	Body           string     `json:"body"`
	MD5            string     `json:"md5"`
	CreatedAt      time.Time  `json:"created_at"`
	Handle         *string    `json:"handle,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

// Capabilities mirrors the server's static capability descriptor.
type Capabilities struct {
	Create        bool `json:"create"`
	Delete        bool `json:"delete"`
	Send          bool `json:"send"`
	Receive       bool `json:"receive"`
	DeleteMessage bool `json:"deleteMessage"`
	GetQueues     bool `json:"getQueues"`
	Count         bool `json:"count"`
	IsExists      bool `json:"isExists"`
}

// CreateQueue registers a queue; false means it already existed. A zero lease
// leaves the server default in place.
func (c *Client) CreateQueue(ctx context.Context, queue string, lease time.Duration) (bool, error) {
	body := map[string]any{}
	if lease > 0 {
		body["lease_ms"] = lease.Milliseconds()
	}
	var resp struct {
		Created bool `json:"created"`
	}
	err := c.do(ctx, http.MethodPut, c.queueURL(queue), body, &resp, http.StatusCreated, http.StatusOK)
	if err != nil {
		return false, fmt.Errorf("create queue: %w", err)
	}
	return resp.Created, nil
}

// DeleteQueue removes a queue; false means it was already absent.
func (c *Client) DeleteQueue(ctx context.Context, queue string) (bool, error) {
	var resp struct {
		OK bool `json:"ok"`
	}
	err := c.do(ctx, http.MethodDelete, c.queueURL(queue), nil, &resp, http.StatusOK)
	if err != nil {
		return false, fmt.Errorf("delete queue: %w", err)
	}
	return resp.OK, nil
}

// Queues lists all queue names.
func (c *Client) Queues(ctx context.Context) ([]string, error) {
	var resp struct {
		Queues []string `json:"queues"`
	}
	err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/queues", nil, &resp, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	return resp.Queues, nil
}

// Count returns the number of messages stored for a queue.
func (c *Client) Count(ctx context.Context, queue string) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, c.queueURL(queue)+"/stats", nil, &resp, http.StatusOK)
	if err != nil {
		return 0, fmt.Errorf("queue stats: %w", err)
	}
	return resp.Count, nil
}

// Exists reports whether the queue is known to the server. Transport errors
// surface; a 404 is simply false.
func (c *Client) Exists(ctx context.Context, queue string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.queueURL(queue)+"/stats", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

// Capabilities fetches the server's capability descriptor.
func (c *Client) Capabilities(ctx context.Context) (*Capabilities, error) {
	var caps Capabilities
	err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/capabilities", nil, &caps, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("capabilities: %w", err)
	}
	return &caps, nil
}

// Send enqueues one message and returns the producer's receipt.
func (c *Client) Send(ctx context.Context, queue, body string) (*Message, error) {
	var m Message
	err := c.do(ctx, http.MethodPost, c.queueURL(queue)+"/messages",
		map[string]any{"body": body}, &m, http.StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	return &m, nil
}

// Receive leases up to max messages for the given duration. A zero lease uses
// the queue default.
func (c *Client) Receive(ctx context.Context, queue string, max int, lease time.Duration) ([]*Message, error) {
	body := map[string]any{"max": max}
	if lease > 0 {
		body["lease_ms"] = lease.Milliseconds()
	}
	var batch []*Message
	err := c.do(ctx, http.MethodPost, c.queueURL(queue)+":receive", body, &batch, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	return batch, nil
}

// DeleteMessage acknowledges a leased message by handle; false means the
// handle matched nothing.
func (c *Client) DeleteMessage(ctx context.Context, handle string) (bool, error) {
	u := fmt.Sprintf("%s/v1/messages/%s:delete", c.baseURL, url.PathEscape(handle))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader([]byte("{}")))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		b, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("delete message: %s - %s", resp.Status, string(b))
	}
}

// Purge drops all messages in a queue and returns how many were removed.
func (c *Client) Purge(ctx context.Context, queue string) (int64, error) {
	var resp struct {
		Purged int64 `json:"purged"`
	}
	err := c.do(ctx, http.MethodPost, c.queueURL(queue)+":purge", map[string]any{}, &resp, http.StatusOK)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return resp.Purged, nil
}

func (c *Client) queueURL(queue string) string {
	return fmt.Sprintf("%s/v1/queues/%s", c.baseURL, url.PathEscape(queue))
}

func (c *Client) do(ctx context.Context, method, url string, body, out any, wantStatus ...int) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	ok := false
	for _, status := range wantStatus {
		if resp.StatusCode == status {
			ok = true
			break
		}
	}
	if !ok {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s - %s", resp.Status, string(b))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
