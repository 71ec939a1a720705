package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"doc-reindexer/internal/errors"
)

// solrStub serves a fixed collection and records updates and commands.
type solrStub struct {
	mu       sync.Mutex
	docs     []string
	posts    []string
	commands []string
}

func newSolrStub(n int) *solrStub {
	s := &solrStub{}
	for i := 0; i < n; i++ {
		s.docs = append(s.docs, fmt.Sprintf(`{"id":"%d","title":"t%d","internal":"x"}`, i, i))
	}
	return s
}

func (s *solrStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.HasSuffix(r.URL.Path, "/select"):
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		rows, _ := strconv.Atoi(r.URL.Query().Get("rows"))
		start = min(start, len(s.docs))
		end := min(start+rows, len(s.docs))
		fmt.Fprintf(w, `{"responseHeader":{"status":0},"response":{"numFound":%d,"docs":[%s]}}`,
			len(s.docs), strings.Join(s.docs[start:end], ","))
	case strings.HasSuffix(r.URL.Path, "/update/json"):
		body, _ := io.ReadAll(r.Body)
		s.posts = append(s.posts, string(body))
		fmt.Fprint(w, `{"responseHeader":{"status":0}}`)
	case strings.HasSuffix(r.URL.Path, "/update"):
		for k := range r.URL.Query() {
			if k != "wt" {
				s.commands = append(s.commands, k)
			}
		}
		fmt.Fprint(w, `{"responseHeader":{"status":0}}`)
	default:
		http.NotFound(w, r)
	}
}

func serverFlags(t *testing.T, h http.Handler) []string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return []string{"--host", "http://" + u.Hostname(), "--port", u.Port(), "--collection", "core1", "--retry-delay", "1ms"}
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	stub := newSolrStub(25)
	args := append([]string{"run"}, serverFlags(t, stub)...)
	args = append(args, "--rows", "10", "--commit-frequency", "2", "--field-rule", "internal=drop", "--field-rule", "title=blank")

	out, err := execute(args...)
	require.NoError(t, err, out)

	require.Len(t, stub.posts, 3)
	assert.Equal(t, int64(10), gjson.Get(stub.posts[0], "#").Int())
	assert.Equal(t, int64(5), gjson.Get(stub.posts[2], "#").Int())
	for _, post := range stub.posts {
		assert.Empty(t, gjson.Get(post, "#.internal").Array())
		for _, title := range gjson.Get(post, "#.title").Array() {
			assert.Equal(t, "", title.String())
		}
	}
	assert.Equal(t, []string{"commit", "commit"}, stub.commands)
	assert.Contains(t, out, "committed")
	assert.Contains(t, out, `"percent": "100.0000"`)
	assert.Contains(t, out, "reindex completed")
}

func TestRunCommandEndOffset(t *testing.T) {
	stub := newSolrStub(25)
	args := append([]string{"run", "--rows", "10", "--end", "15"}, serverFlags(t, stub)...)

	_, err := execute(args...)
	require.NoError(t, err)
	require.Len(t, stub.posts, 2)
	assert.Equal(t, "14", gjson.Get(stub.posts[1], "4.id").String())
	assert.Equal(t, []string{"commit"}, stub.commands)
}

func TestControlCommands(t *testing.T) {
	stub := newSolrStub(0)
	flags := serverFlags(t, stub)
	for _, name := range []string{"commit", "rollback", "optimize"} {
		_, err := execute(append([]string{name}, flags...)...)
		require.NoError(t, err, name)
	}
	assert.Equal(t, []string{"commit", "rollback", "optimize"}, stub.commands)
}

func TestRunCommandRejectsWriterType(t *testing.T) {
	stub := newSolrStub(5)
	args := append([]string{"run", "--writer-type", "xml"}, serverFlags(t, stub)...)

	_, err := execute(args...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Config))
	assert.Empty(t, stub.posts, "no work before the configuration is valid")
}

func TestRunCommandFetchFailure(t *testing.T) {
	args := append([]string{"run"}, serverFlags(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))...)

	out, err := execute(args...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Transport))
	assert.Contains(t, out, "reindex failed")
}
