// Package oura talks to the Oura v2 REST API: the per-stream usercollection
// endpoints and the OAuth token endpoint.
package oura

import (
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
)

// Options configures a Client
type Options struct {
	BaseURL       string
	TokenURL      string
	ClientID      string
	ClientSecret  string
	Concurrency   int
	StreamTimeout time.Duration
	MaxPages      int
	// RefreshMaxElapsed bounds the total time spent retrying a token exchange
	RefreshMaxElapsed time.Duration
}

// Client fetches provider streams and exchanges refresh tokens
type Client struct {
	http   *resty.Client
	auth   *resty.Client
	pool   pond.Pool
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewClient creates a provider client. The stream pool is shared by every
// FetchAll call on the client and is released by Close.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.Concurrency < 1 {
		opts.Concurrency = len(domain.Streams)
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = 15 * time.Second
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	if opts.RefreshMaxElapsed <= 0 {
		opts.RefreshMaxElapsed = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// No retries on stream fetches: a failed stream is reported, not repeated.
	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Accept", "application/json")

	authClient := resty.New().
		SetTimeout(opts.StreamTimeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		auth:   authClient,
		pool:   pond.NewPool(opts.Concurrency),
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Close waits for in-flight stream fetches and stops the pool
func (c *Client) Close() {
	c.pool.StopAndWait()
}
