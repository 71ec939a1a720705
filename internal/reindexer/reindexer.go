// Package reindexer implements index.Backend over a Reindexer namespace reached
// through the cproto binding. Writes are buffered in a transaction that Commit
// applies and Rollback discards.
package reindexer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/restream/reindexer"
	_ "github.com/restream/reindexer/bindings/cproto"

	"doc-reindexer/internal/config"
	"doc-reindexer/internal/errors"
	"doc-reindexer/internal/models"
)

// statusRejected is reported when the server refuses a document.
const statusRejected = 1

// item declares the primary key so the namespace can be opened; every other
// field travels as raw json.
type item struct {
	ID string `reindex:"id,hash,pk"`
}

type Client struct {
	db        *reindexer.Reindexer
	namespace string

	mu sync.Mutex
	tx *reindexer.Tx
}

func New(cfg config.Index) (*Client, error) {
	opts := []interface{}{reindexer.WithCreateDBIfMissing()}
	if cfg.Timeout > 0 {
		opts = append(opts, reindexer.WithTimeouts(cfg.Timeout, cfg.Timeout))
	}
	db := reindexer.NewReindex(DSN(cfg), opts...)
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, errors.Transport, "reindexer ping")
	}
	c := &Client{db: db, namespace: cfg.Collection}
	if err := c.EnsureNamespace(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// DSN builds cproto://host:port/db, where the configured path names the database.
func DSN(cfg config.Index) string {
	host := cfg.Host
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.TrimRight(host, "/")
	return fmt.Sprintf("cproto://%s:%d/%s", host, cfg.Port, strings.Trim(cfg.Path, "/"))
}

func (c *Client) EnsureNamespace() error {
	if err := c.db.OpenNamespace(c.namespace, reindexer.DefaultNamespaceOptions(), item{}); err != nil {
		return errors.Wrap(err, errors.Transport, "open namespace %s", c.namespace)
	}
	return nil
}

func (c *Client) Select(ctx context.Context, params models.QueryParams) (models.PageResult, error) {
	filter, err := parseQuery(params.Query)
	if err != nil {
		return models.PageResult{}, err
	}
	db := c.db.WithContext(ctx)

	total, err := c.count(db, filter)
	if err != nil {
		return models.PageResult{}, err
	}

	q := db.Query(c.namespace).Offset(params.Start).Limit(params.Rows)
	if filter != nil {
		q = q.Where(filter.field, reindexer.EQ, filter.value)
	}
	it := q.ExecToJson()
	defer it.Close()

	page := models.PageResult{TotalFound: total}
	for it.Next() {
		doc, err := models.NewDocument(it.JSON())
		if err != nil {
			return models.PageResult{}, errors.Wrap(err, errors.Decode, "select %s", c.namespace)
		}
		page.Documents = append(page.Documents, doc)
	}
	if err := it.Error(); err != nil {
		return models.PageResult{}, errors.Wrap(err, errors.Transport, "select %s offset=%d", c.namespace, params.Start)
	}
	return page, nil
}

func (c *Client) count(db *reindexer.Reindexer, filter *equality) (int, error) {
	q := db.Query(c.namespace).ReqTotal().Limit(1)
	if filter != nil {
		q = q.Where(filter.field, reindexer.EQ, filter.value)
	}
	it := q.Exec()
	defer it.Close()
	if err := it.Error(); err != nil {
		return 0, errors.Wrap(err, errors.Transport, "count %s", c.namespace)
	}
	return it.TotalCount(), nil
}

// Update adds docs to the open transaction, starting one when needed.
func (c *Client) Update(ctx context.Context, docs []*models.Document) (models.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		tx, err := c.db.WithContext(ctx).BeginTx(c.namespace)
		if err != nil {
			return models.Status{}, errors.Wrap(err, errors.Transport, "begin tx %s", c.namespace)
		}
		c.tx = tx
	}
	var st models.Status
	for _, doc := range docs {
		if err := c.tx.Upsert(doc.Bytes()); err != nil {
			st.Code = statusRejected
			st.FailedIDs = append(st.FailedIDs, doc.ID())
		}
	}
	return st, nil
}

// Commit applies the open transaction. With nothing pending it is a no-op.
func (c *Client) Commit(context.Context) (models.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return models.Status{}, nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return models.Status{}, errors.Wrap(err, errors.Transport, "commit %s", c.namespace)
	}
	return models.Status{}, nil
}

// Rollback discards the open transaction.
func (c *Client) Rollback(context.Context) (models.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return models.Status{}, nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil {
		return models.Status{}, errors.Wrap(err, errors.Transport, "rollback %s", c.namespace)
	}
	return models.Status{}, nil
}

func (c *Client) Close() error {
	if _, err := c.Rollback(context.Background()); err != nil {
		return err
	}
	c.db.Close()
	return nil
}

type equality struct {
	field string
	value string
}

// parseQuery understands a full scan ("*:*" or empty) and a single field:value match.
func parseQuery(q string) (*equality, error) {
	q = strings.TrimSpace(q)
	if q == "" || q == "*:*" {
		return nil, nil
	}
	field, value, ok := strings.Cut(q, ":")
	if !ok || field == "" || value == "" || strings.ContainsAny(field+value, " *") {
		return nil, errors.New(errors.Config, "unsupported reindexer query %q, want *:* or field:value", q)
	}
	return &equality{field: field, value: strings.Trim(value, `"`)}, nil
}
