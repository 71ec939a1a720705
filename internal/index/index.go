// Package index exposes the four capabilities the reindex loop needs from a
// search index (query, post a batch, commit, rollback) over pluggable backends.
package index

import (
	"context"
	"time"

	"go.uber.org/zap"

	"doc-reindexer/internal/errors"
	"doc-reindexer/internal/models"
)

// Backend speaks the wire protocol of one kind of index. Every method must fail
// rather than block past its configured timeout.
type Backend interface {
	Select(ctx context.Context, params models.QueryParams) (models.PageResult, error)
	Update(ctx context.Context, docs []*models.Document) (models.Status, error)
	Commit(ctx context.Context) (models.Status, error)
	Rollback(ctx context.Context) (models.Status, error)
	Close() error
}

// Optimizer is implemented by backends that can merge index segments on request.
type Optimizer interface {
	Optimize(ctx context.Context) (models.Status, error)
}

// FetchKind tags a FetchResult.
type FetchKind int

const (
	FetchPage FetchKind = iota
	FetchExhausted
	FetchTransportError
)

func (k FetchKind) String() string {
	switch k {
	case FetchPage:
		return "page"
	case FetchExhausted:
		return "exhausted"
	case FetchTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// FetchResult is the outcome of Query. Page is set for FetchPage, Err for FetchTransportError.
type FetchResult struct {
	Kind FetchKind
	Page models.PageResult
	Err  error
}

// DefaultRetryDelay is the wait before an empty page is fetched a second time.
const DefaultRetryDelay = 5 * time.Second

// Client adds the empty page retry policy on top of a Backend.
type Client struct {
	backend    Backend
	retryDelay time.Duration
	log        *zap.Logger
}

type Option func(*Client)

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:    backend,
		retryDelay: DefaultRetryDelay,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query fetches one page. An empty page is fetched once more after the retry
// delay before being reported as exhausted. Transport failures are never
// folded into exhaustion.
func (c *Client) Query(ctx context.Context, params models.QueryParams) FetchResult {
	const maxAttempts = 2
	for attempt := 1; ; attempt++ {
		page, err := c.backend.Select(ctx, params)
		if err != nil {
			return FetchResult{Kind: FetchTransportError, Err: err}
		}
		if len(page.Documents) > 0 {
			return FetchResult{Kind: FetchPage, Page: page}
		}
		if attempt >= maxAttempts {
			return FetchResult{Kind: FetchExhausted, Page: page}
		}
		c.log.Debug("empty page, retrying",
			zap.Int("start", params.Start),
			zap.Duration("delay", c.retryDelay))
		if err := sleep(ctx, c.retryDelay); err != nil {
			return FetchResult{Kind: FetchTransportError, Err: errors.Wrap(err, errors.Transport, "retry wait")}
		}
	}
}

// PostBatch writes docs. Writes become visible after the next commit.
func (c *Client) PostBatch(ctx context.Context, docs []*models.Document) (models.Status, error) {
	return c.backend.Update(ctx, docs)
}

// Commit makes pending writes visible. Without pending writes it succeeds as a no-op.
func (c *Client) Commit(ctx context.Context) (models.Status, error) {
	return c.backend.Commit(ctx)
}

// Rollback discards writes since the last commit. The driver never calls it.
func (c *Client) Rollback(ctx context.Context) (models.Status, error) {
	return c.backend.Rollback(ctx)
}

// Optimize asks the backend to optimize, when it supports that.
func (c *Client) Optimize(ctx context.Context) (models.Status, error) {
	o, ok := c.backend.(Optimizer)
	if !ok {
		return models.Status{}, errors.New(errors.Config, "backend does not support optimize")
	}
	return o.Optimize(ctx)
}

func (c *Client) Close() error {
	return c.backend.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
