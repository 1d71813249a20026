// Package directory lists entities from the Home Assistant REST API.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/hassrename/hren/internal/pattern"
	"github.com/hassrename/hren/internal/plan"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 64 << 20

// ErrNoEntities is returned by List when nothing matches the filter.
var ErrNoEntities = errors.New("no entities found")

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the Home Assistant base URL (e.g., "http://homeassistant.local:8123").
	BaseURL string
	// Token is the long-lived access token.
	Token string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client talks to /api/states.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// StatusError is a non-2xx answer from the REST API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("directory: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("directory: unexpected status %d: %s", e.StatusCode, body)
}

// BaseURL builds the REST base URL for host.
func BaseURL(host string, tls bool) string {
	scheme := "http"
	if tls {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimRight(host, "/")
}

// NewClient creates a directory client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("directory: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("directory: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type stateObject struct {
	EntityID   string `json:"entity_id"`
	Attributes struct {
		FriendlyName string `json:"friendly_name"`
	} `json:"attributes"`
}

// States returns every entity the server reports, in server order.
// Entities without a friendly_name get an empty label.
func (c *Client) States(ctx context.Context) ([]plan.Entity, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/states")
	if err != nil {
		return nil, err
	}

	var states []stateObject
	if err := json.Unmarshal(body, &states); err != nil {
		return nil, fmt.Errorf("directory: failed to parse states response: %w", err)
	}

	entities := make([]plan.Entity, 0, len(states))
	for _, s := range states {
		if s.EntityID == "" {
			continue
		}
		entities = append(entities, plan.Entity{Label: s.Attributes.FriendlyName, ID: s.EntityID})
	}
	c.logger.Debug("fetched states", "count", len(entities))
	return entities, nil
}

// List fetches states and keeps those whose identifier matches filter.
// An empty filter keeps everything.
func (c *Client) List(ctx context.Context, filter string) ([]plan.Entity, error) {
	entities, err := c.States(ctx)
	if err != nil {
		return nil, err
	}
	matched, err := Filter(entities, filter)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, ErrNoEntities
	}
	c.logger.Info("listed entities", "total", len(entities), "matched", len(matched))
	return matched, nil
}

// Filter keeps entities whose identifier contains a match for expr.
// Labels are never searched.
func Filter(entities []plan.Entity, expr string) ([]plan.Entity, error) {
	if expr == "" {
		return append([]plan.Entity(nil), entities...), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &pattern.ConfigError{Field: "search", Value: expr, Message: "invalid search pattern", Err: err}
	}

	var out []plan.Entity
	for _, e := range entities {
		if re.MatchString(e.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: failed to create request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.token)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("directory: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("directory: failed to read response body: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: response.StatusCode, Body: string(body)}
	}
	return body, nil
}
