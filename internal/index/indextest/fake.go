// Package indextest provides an in-memory index.Backend for tests.
package indextest

import (
	"context"
	"fmt"
	"sync"

	"doc-reindexer/internal/models"
)

// Backend keeps a committed and a pending view of a collection and records every
// call made against it.
type Backend struct {
	mu        sync.Mutex
	committed []*models.Document
	pending   []*models.Document

	Selects   []models.QueryParams
	Batches   [][]*models.Document
	Commits   int
	Rollbacks int
	Optimizes int
	// CommitsAfterPage holds len(Batches) at each commit.
	CommitsAfterPage []int

	// EmptySelects makes the next n selects return no documents.
	EmptySelects int
	// SelectErr, when set, fails every select.
	SelectErr error
	// UpdateStatus, when set, decides the status of each batch.
	UpdateStatus func(batch []*models.Document) models.Status
	UpdateErr    error
	CommitStatus int
	CommitErr    error
	Closed       bool
}

// NewBackend creates a collection of n documents with ids "doc-0".."doc-(n-1)".
func NewBackend(n int) *Backend {
	b := &Backend{}
	for i := 0; i < n; i++ {
		doc, err := models.NewDocument([]byte(fmt.Sprintf(`{"id":"doc-%d","n":%d,"title":"title %d","secret":"s%d"}`, i, i, i, i)))
		if err != nil {
			panic(err)
		}
		b.committed = append(b.committed, doc)
	}
	return b
}

func (b *Backend) Select(_ context.Context, params models.QueryParams) (models.PageResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Selects = append(b.Selects, params)
	if b.SelectErr != nil {
		return models.PageResult{}, b.SelectErr
	}
	total := len(b.committed)
	if b.EmptySelects > 0 {
		b.EmptySelects--
		return models.PageResult{TotalFound: total}, nil
	}
	if params.Start >= total {
		return models.PageResult{TotalFound: total}, nil
	}
	end := params.Start + params.Rows
	if end > total {
		end = total
	}
	docs := make([]*models.Document, 0, end-params.Start)
	for _, d := range b.committed[params.Start:end] {
		// hand out copies so edits by the caller do not leak into the store
		cp, _ := models.NewDocument(d.Bytes())
		docs = append(docs, cp)
	}
	return models.PageResult{TotalFound: total, Documents: docs}, nil
}

func (b *Backend) Update(_ context.Context, docs []*models.Document) (models.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Batches = append(b.Batches, docs)
	if b.UpdateErr != nil {
		return models.Status{}, b.UpdateErr
	}
	if b.UpdateStatus != nil {
		if st := b.UpdateStatus(docs); !st.OK() {
			return st, nil
		}
	}
	b.pending = append(b.pending, docs...)
	return models.Status{}, nil
}

func (b *Backend) Commit(context.Context) (models.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Commits++
	b.CommitsAfterPage = append(b.CommitsAfterPage, len(b.Batches))
	if b.CommitErr != nil {
		return models.Status{}, b.CommitErr
	}
	if b.CommitStatus != models.StatusOK {
		return models.Status{Code: b.CommitStatus}, nil
	}
	index := make(map[string]int, len(b.committed))
	for i, d := range b.committed {
		index[d.ID()] = i
	}
	for _, d := range b.pending {
		if i, ok := index[d.ID()]; ok {
			b.committed[i] = d
		} else {
			b.committed = append(b.committed, d)
		}
	}
	b.pending = nil
	return models.Status{}, nil
}

func (b *Backend) Rollback(context.Context) (models.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Rollbacks++
	b.pending = nil
	return models.Status{}, nil
}

func (b *Backend) Optimize(context.Context) (models.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Optimizes++
	return models.Status{}, nil
}

func (b *Backend) Close() error {
	b.Closed = true
	return nil
}

// Committed returns the documents visible to readers.
func (b *Backend) Committed() []*models.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*models.Document(nil), b.committed...)
}

// Pending returns the number of uncommitted writes.
func (b *Backend) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
