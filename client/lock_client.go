package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Holder is one reservation in a holders listing.
type Holder struct {
	Concurrency int       `json:"concurrency"`
	Created     time.Time `json:"created"`
	Owner       string    `json:"owner"`
	TTL         int       `json:"ttl"`
	Expired     bool      `json:"expired"`
}

// HoldersListing is the server's answer to a holders query. It is a stale
// snapshot: the server reads outside the writer lease and may serve a cached
// response.
type HoldersListing struct {
	Key     string            `json:"key"`
	Count   int               `json:"count"`
	Holders map[string]Holder `json:"holders"`
}

// LockClient talks to the lock-manager inspection API.
type LockClient struct {
	client *resty.Client
	logger Logger
}

// New creates a LockClient for the API at baseURL.
func New(baseURL string, logger Logger, opts ...Option) (*LockClient, error) {
	if baseURL == "" {
		return nil, errors.New("base URL must be set")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	options := newClientOptions()

	for _, opt := range opts {
		opt(options)
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(options.retryCount).
		SetRetryWaitTime(options.retryWaitTime).
		SetRetryMaxWaitTime(options.retryMaxWaitTime).
		AddRetryCondition(retryTransientFailures).
		SetLogger(&restyLogger{logger: logger})

	return &LockClient{client: client, logger: logger}, nil
}

// retryTransientFailures retries connection errors and server-side failures.
// Client-side answers are final: a 404 names a prefix that does not exist and
// a 429 means the per-key release budget is spent, and that budget refills too
// slowly for an in-call retry to help.
func retryTransientFailures(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	return r.StatusCode() >= 500
}

// Ping checks that the API is reachable.
func (c *LockClient) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "ping")

	return err
}

// GetHolders returns the current reservations for one lock key. An unknown
// prefix is reported as ErrUnknownPrefix.
func (c *LockClient) GetHolders(ctx context.Context, prefix, name string) (*HoldersListing, error) {
	body, err := c.get(ctx, fmt.Sprintf("locks/%s/%s", prefix, name))
	if err != nil {
		return nil, err
	}

	var listing HoldersListing

	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode holders listing: %w", err)
	}

	return &listing, nil
}

// Release asks the server for a best-effort release of one reservation. A nil
// return means the request was accepted, not that the reservation existed.
// A spent per-key budget is reported as ErrRateLimited.
func (c *LockClient) Release(ctx context.Context, prefix, name, id string) error {
	body, err := json.Marshal(map[string]string{"id": id})
	if err != nil {
		return fmt.Errorf("failed to marshal release request: %w", err)
	}

	return c.post(ctx, fmt.Sprintf("locks/%s/%s/release", prefix, name), body)
}

func (c *LockClient) get(ctx context.Context, path string) ([]byte, error) {
	request := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json")

	response, err := request.Get(path)
	if err != nil {
		return nil, fmt.Errorf("GET %s failed: %w", response.Request.URL, err)
	}

	if !response.IsSuccess() {
		return nil, fmt.Errorf("GET %s failed: %w", response.Request.URL, newAPIError(response.StatusCode(), response.Body()))
	}

	return response.Body(), nil
}

func (c *LockClient) post(ctx context.Context, path string, body []byte) error {
	request := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)

	response, err := request.Post(path)
	if err != nil {
		return fmt.Errorf("POST %s failed: %w", response.Request.URL, err)
	}

	if !response.IsSuccess() {
		return fmt.Errorf("POST %s failed: %w", response.Request.URL, newAPIError(response.StatusCode(), response.Body()))
	}

	return nil
}
