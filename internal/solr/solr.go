// Package solr implements index.Backend over the Solr select and update handlers.
package solr

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"doc-reindexer/internal/config"
	"doc-reindexer/internal/errors"
	"doc-reindexer/internal/models"
)

const maxRedirects = 2

// Client holds only the resolved endpoint and transport settings.
type Client struct {
	endpoint   string
	writerType string
	http       *http.Client
}

func New(cfg config.Index) (*Client, error) {
	if cfg.WriterType != config.WriterJSON {
		return nil, errors.New(errors.Config, "unsupported writer type %q", cfg.WriterType)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
	}
	return &Client{
		endpoint:   cfg.Endpoint(),
		writerType: cfg.WriterType,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}, nil
}

// Endpoint returns the collection base url.
func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) Select(ctx context.Context, params models.QueryParams) (models.PageResult, error) {
	q := url.Values{}
	q.Set("q", params.Query)
	q.Set("start", strconv.Itoa(params.Start))
	q.Set("rows", strconv.Itoa(params.Rows))
	q.Set("wt", c.writerType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"select?"+q.Encode(), nil)
	if err != nil {
		return models.PageResult{}, errors.Wrap(err, errors.Transport, "build select request")
	}
	body, code, err := c.do(req)
	if err != nil {
		return models.PageResult{}, errors.Wrap(err, errors.Transport, "select start=%d", params.Start)
	}
	if code < 200 || code > 299 {
		return models.PageResult{}, errors.New(errors.Transport, "select start=%d: http %d: %s", params.Start, code, snippet(body))
	}
	return parsePage(body)
}

func (c *Client) Update(ctx context.Context, docs []*models.Document) (models.Status, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, d := range docs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(d.Bytes())
	}
	buf.WriteByte(']')

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"update/json?wt="+url.QueryEscape(c.writerType), &buf)
	if err != nil {
		return models.Status{}, errors.Wrap(err, errors.Transport, "build update request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.control(req, "update")
}

func (c *Client) Commit(ctx context.Context) (models.Status, error) {
	return c.updateCommand(ctx, "commit")
}

func (c *Client) Rollback(ctx context.Context) (models.Status, error) {
	return c.updateCommand(ctx, "rollback")
}

func (c *Client) Optimize(ctx context.Context) (models.Status, error) {
	return c.updateCommand(ctx, "optimize")
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// updateCommand posts a parameterless control request such as commit=true.
func (c *Client) updateCommand(ctx context.Context, command string) (models.Status, error) {
	q := url.Values{}
	q.Set(command, "true")
	q.Set("wt", c.writerType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"update?"+q.Encode(), nil)
	if err != nil {
		return models.Status{}, errors.Wrap(err, errors.Transport, "build %s request", command)
	}
	return c.control(req, command)
}

// control runs an update style request. Solr reports failures in the body as
// responseHeader.status, so a parseable body on a non-2xx reply is a status,
// not a transport failure.
func (c *Client) control(req *http.Request, op string) (models.Status, error) {
	body, code, err := c.do(req)
	if err != nil {
		return models.Status{}, errors.Wrap(err, errors.Transport, "%s", op)
	}
	st, err := parseStatus(body)
	if err != nil {
		if code < 200 || code > 299 {
			return models.Status{}, errors.New(errors.Transport, "%s: http %d: %s", op, code, snippet(body))
		}
		return models.Status{}, errors.Wrap(err, errors.Decode, "%s", op)
	}
	if st.Code == models.StatusOK && (code < 200 || code > 299) {
		st.Code = code
	}
	return st, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func parsePage(body []byte) (models.PageResult, error) {
	if !gjson.ValidBytes(body) {
		return models.PageResult{}, errors.New(errors.Decode, "select: invalid json response")
	}
	res := gjson.ParseBytes(body)
	if st := res.Get("responseHeader.status"); st.Exists() && st.Int() != models.StatusOK {
		return models.PageResult{}, errors.New(errors.Transport, "select: status %d: %s", st.Int(), res.Get("error.msg").String())
	}
	response := res.Get("response")
	if !response.Exists() {
		return models.PageResult{}, errors.New(errors.Decode, "select: response missing")
	}
	page := models.PageResult{TotalFound: int(response.Get("numFound").Int())}
	var decodeErr error
	response.Get("docs").ForEach(func(_, value gjson.Result) bool {
		doc, err := models.NewDocument([]byte(value.Raw))
		if err != nil {
			decodeErr = err
			return false
		}
		page.Documents = append(page.Documents, doc)
		return true
	})
	if decodeErr != nil {
		return models.PageResult{}, errors.Wrap(decodeErr, errors.Decode, "select")
	}
	return page, nil
}

func parseStatus(body []byte) (models.Status, error) {
	if !gjson.ValidBytes(body) {
		return models.Status{}, errors.New(errors.Decode, "invalid json response")
	}
	header := gjson.GetBytes(body, "responseHeader")
	if !header.Get("status").Exists() {
		return models.Status{}, errors.New(errors.Decode, "responseHeader.status missing")
	}
	st := models.Status{Code: int(header.Get("status").Int())}
	// populated by the tolerant update processor
	ids := lo.Map(header.Get("errors.#.id").Array(), func(r gjson.Result, _ int) string {
		return r.String()
	})
	st.FailedIDs = lo.Uniq(lo.Filter(ids, func(id string, _ int) bool { return id != "" }))
	return st, nil
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
