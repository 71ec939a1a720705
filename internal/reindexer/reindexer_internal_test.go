package reindexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-reindexer/internal/config"
	"doc-reindexer/internal/errors"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "cproto://127.0.0.1:6534/testdb", DSN(config.Index{Host: "127.0.0.1", Port: 6534, Path: "/testdb/"}))
	assert.Equal(t, "cproto://db.local:6534/books", DSN(config.Index{Host: "http://db.local/", Port: 6534, Path: "books"}))
}

func TestParseQuery(t *testing.T) {
	for _, q := range []string{"", "*:*", "  *:*  "} {
		f, err := parseQuery(q)
		require.NoError(t, err)
		assert.Nil(t, f, q)
	}

	f, err := parseQuery(`type:"book"`)
	require.NoError(t, err)
	assert.Equal(t, &equality{field: "type", value: "book"}, f)

	for _, q := range []string{"title", "a:b AND c:d", "title:foo*", ":x"} {
		_, err := parseQuery(q)
		assert.True(t, errors.Is(err, errors.Config), q)
	}
}
