package resourcesapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/skillcoder/quota-watcher-controller/internal/logic/sessions"
)

const requestTimeout = 10 * time.Second

// Client is the read-only adapter for the resource-pool/class lookup
// service. With an empty base URL the client is disabled and every lookup
// reports the resource missing, which the session handler degrades to
// unenriched metrics.
type Client struct {
	logger  *slog.Logger
	baseURL string
	token   string
	http    *http.Client
}

// New creates a new resource lookup client.
func New(logger *slog.Logger, baseURL, token string) *Client {
	return &Client{
		logger:  logger,
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

var _ sessions.ResourceRepository = (*Client)(nil)

type resourceClassPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type resourcePoolPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Client) GetResourceClassQuery(ctx context.Context, classID string) (*sessions.ResourceClass, error) {
	var payload resourceClassPayload
	if err := c.get(ctx, fmt.Sprintf("/resource_classes/%s", classID), classID, &payload); err != nil {
		return nil, err
	}

	return &sessions.ResourceClass{ID: payload.ID, Name: payload.Name}, nil
}

func (c *Client) GetResourcePoolFromClassQuery(ctx context.Context, classID string) (*sessions.ResourcePool, error) {
	var payload resourcePoolPayload
	if err := c.get(ctx, fmt.Sprintf("/resource_classes/%s/pool", classID), classID, &payload); err != nil {
		return nil, err
	}

	return &sessions.ResourcePool{ID: payload.ID, Name: payload.Name}, nil
}

func (c *Client) get(ctx context.Context, path, id string, out any) error {
	if c.baseURL == "" {
		return &MissingResourceError{ID: id}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("resource lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &MissingResourceError{ID: id}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("resource lookup: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode resource lookup response: %w", err)
	}

	return nil
}
