// Package service drives the reindex: it pages through the collection, applies
// field rules, writes every page back and commits in batches.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"doc-reindexer/internal/config"
	"doc-reindexer/internal/errors"
	"doc-reindexer/internal/index"
	"doc-reindexer/internal/models"
)

// Client is what the driver needs from the index.
type Client interface {
	Query(ctx context.Context, params models.QueryParams) index.FetchResult
	PostBatch(ctx context.Context, docs []*models.Document) (models.Status, error)
	Commit(ctx context.Context) (models.Status, error)
	Optimize(ctx context.Context) (models.Status, error)
}

type Phase int

const (
	Fetching Phase = iota
	Transforming
	Writing
	Committing
	Completed
	Failed
)

func (p Phase) String() string {
	return [...]string{"fetching", "transforming", "writing", "committing", "completed", "failed"}[p]
}

type Service struct {
	client Client
	run    config.Run
	rules  models.FieldRules
	log    *zap.Logger
	drift  *driftDetector
}

func New(client Client, cfg *config.Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	run := cfg.Run
	if run.CommitFrequency < 1 {
		run.CommitFrequency = 1
	}
	return &Service{
		client: client,
		run:    run,
		rules:  cfg.FieldRules,
		log:    log,
		drift:  newDriftDetector(cfg.Run.DriftWindow, log),
	}
}

// Run scans from the configured start offset until the collection is exhausted
// or the end offset is reached. Write and commit failures are logged and
// counted; a failed fetch ends the run with an error.
func (s *Service) Run(ctx context.Context) (models.RunState, error) {
	s.drift.reset()
	params := models.QueryParams{
		Query: s.run.Query,
		Start: s.run.StartOffset,
		Rows:  s.run.PageSize,
	}
	state := models.RunState{Position: s.run.StartOffset}
	uncommitted := 0

	s.log.Info("reindex started",
		zap.String("query", params.Query),
		zap.Int("start", s.run.StartOffset),
		zap.Int("end", s.run.EndOffset),
		zap.Int("rows", s.run.PageSize),
		zap.Int("commit_frequency", s.run.CommitFrequency),
		zap.Strings("field_rules", s.rules.Strings()))

	for {
		if err := ctx.Err(); err != nil {
			s.enter(Failed, state)
			return state, errors.Wrap(err, errors.Unknown, "reindex interrupted at offset %d", params.Start)
		}

		s.enter(Fetching, state)
		res := s.client.Query(ctx, params)
		switch res.Kind {
		case index.FetchTransportError:
			s.enter(Failed, state)
			s.log.Error("fetch failed", zap.Int("start", params.Start), zap.Error(res.Err))
			return state, errors.Wrap(res.Err, errors.Transport, "fetch offset %d", params.Start)
		case index.FetchExhausted:
			if uncommitted > 0 {
				s.commit(ctx, &state)
			}
			return s.complete(ctx, state), nil
		}

		page := res.Page
		s.drift.observeTotal(state.TotalDocuments, page.TotalFound)
		state.TotalDocuments = page.TotalFound

		s.enter(Transforming, state)
		batch, boundary, err := s.transform(page.Documents, &state)
		if err != nil {
			s.enter(Failed, state)
			return state, err
		}
		s.drift.observeDocs(batch)

		s.enter(Writing, state)
		s.write(ctx, batch, &state)

		s.enter(Committing, state)
		state.Pages++
		uncommitted++
		scanned := state.TotalDocuments > 0 && state.Position >= state.TotalDocuments
		if boundary {
			state.EndOfIndexReached = true
		}
		if state.Pages%s.run.CommitFrequency == 0 || boundary || scanned {
			s.commit(ctx, &state)
			uncommitted = 0
		}
		if boundary || scanned {
			return s.complete(ctx, state), nil
		}
		params = params.Next()
	}
}

// transform applies the field rules to docs in order, stopping after the
// document at the end offset. The boundary document is part of the batch.
func (s *Service) transform(docs []*models.Document, state *models.RunState) ([]*models.Document, bool, error) {
	batch := make([]*models.Document, 0, len(docs))
	for _, doc := range docs {
		state.Processed++
		state.Position++
		if err := s.rules.Apply(doc); err != nil {
			return nil, false, errors.Wrap(err, errors.Unknown, "apply field rules to %s", doc.ID())
		}
		batch = append(batch, doc)
		if s.run.EndOffset > 0 && state.Position == s.run.EndOffset {
			return batch, true, nil
		}
	}
	return batch, false, nil
}

func (s *Service) write(ctx context.Context, batch []*models.Document, state *models.RunState) {
	if len(batch) == 0 {
		return
	}
	st, err := s.client.PostBatch(ctx, batch)
	if err != nil {
		state.WriteFailures++
		s.log.Error("post batch failed",
			zap.Int("page", state.Pages+1),
			zap.String("last_id", batch[len(batch)-1].ID()),
			zap.Error(err))
		return
	}
	if st.OK() {
		return
	}
	state.WriteFailures++
	ids := st.FailedIDs
	if len(ids) == 0 {
		// no per-document detail, name the last document of the page
		ids = []string{batch[len(batch)-1].ID()}
	}
	s.log.Error("post batch failed",
		zap.Int("page", state.Pages+1),
		zap.Int("status", st.Code),
		zap.Strings("ids", ids))
}

func (s *Service) commit(ctx context.Context, state *models.RunState) {
	st, err := s.client.Commit(ctx)
	switch {
	case err != nil:
		state.CommitFailures++
		s.log.Error("commit failed", zap.Int("page", state.Pages), zap.Error(err))
	case st.Code != models.StatusOK:
		state.CommitFailures++
		s.log.Error("commit failed", zap.Int("page", state.Pages), zap.Int("status", st.Code))
	default:
		state.Commits++
		s.log.Info("committed",
			zap.Int("processed", state.Position),
			zap.Int("total", state.TotalDocuments),
			zap.String("percent", fmt.Sprintf("%.4f", state.Percent())),
			zap.Int("page", state.Pages))
	}
}

func (s *Service) complete(ctx context.Context, state models.RunState) models.RunState {
	if s.run.OptimizeOnComplete {
		st, err := s.client.Optimize(ctx)
		if err != nil || st.Code != models.StatusOK {
			s.log.Error("optimize failed", zap.Int("status", st.Code), zap.Error(err))
		} else {
			s.log.Info("optimized")
		}
	}
	s.enter(Completed, state)
	s.log.Info("reindex completed",
		zap.Int("processed", state.Processed),
		zap.Int("position", state.Position),
		zap.Int("total", state.TotalDocuments),
		zap.Int("pages", state.Pages),
		zap.Int("commits", state.Commits),
		zap.Int("write_failures", state.WriteFailures),
		zap.Int("commit_failures", state.CommitFailures),
		zap.Bool("end_offset_reached", state.EndOfIndexReached))
	return state
}

func (s *Service) enter(p Phase, state models.RunState) {
	s.log.Debug("phase", zap.Stringer("phase", p), zap.Int("page", state.Pages+1))
}
