package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"doc-reindexer/internal/config"
	"doc-reindexer/internal/errors"
	"doc-reindexer/internal/index"
	"doc-reindexer/internal/logger"
	"doc-reindexer/internal/models"
	"doc-reindexer/internal/reindexer"
	"doc-reindexer/internal/service"
	"doc-reindexer/internal/solr"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "doc-reindexer",
		Short:         "Rewrite every document of a search index collection",
		Long:          "doc-reindexer pages through a collection, optionally blanks or drops fields, posts each page back and commits in batches.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config/config.yaml)")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Reindex the collection",
			Args:  cobra.NoArgs,
			RunE:  runReindex,
		},
		controlCmd("commit", "Commit pending writes", (*index.Client).Commit),
		controlCmd("rollback", "Discard writes since the last commit", (*index.Client).Rollback),
		controlCmd("optimize", "Optimize the index", (*index.Client).Optimize),
	)
	return root
}

type session struct {
	cfg    *config.Config
	log    *zap.Logger
	client *index.Client
}

func (s *session) Close() {
	if err := s.client.Close(); err != nil {
		s.log.Warn("close client", zap.Error(err))
	}
	_ = s.log.Sync()
}

func open(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(cmd.OutOrStdout(), cfg.Log.Level, map[string]any{
		"run_id":     ksuid.New().String(),
		"collection": cfg.Index.Collection,
	})
	backend, err := newBackend(cfg.Index)
	if err != nil {
		return nil, err
	}
	client := index.New(backend,
		index.WithRetryDelay(cfg.Run.RetryDelay),
		index.WithLogger(log))
	return &session{cfg: cfg, log: log, client: client}, nil
}

func newBackend(cfg config.Index) (index.Backend, error) {
	switch cfg.Backend {
	case config.BackendReindexer:
		return reindexer.New(cfg)
	case config.BackendSolr:
		return solr.New(cfg)
	}
	return nil, errors.New(errors.Config, "unknown backend %q", cfg.Backend)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	s, err := open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := service.New(s.client, s.cfg, s.log).Run(ctx)
	if err != nil {
		s.log.Error("reindex failed",
			zap.Int("position", state.Position),
			zap.Error(err))
		return err
	}
	return nil
}

func controlCmd(name, short string, call func(*index.Client, context.Context) (models.Status, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := call(s.client, cmd.Context())
			if err != nil {
				return err
			}
			if st.Code != models.StatusOK {
				return errors.New(errors.Commit, "%s returned status %d", name, st.Code)
			}
			s.log.Info(name + " ok")
			return nil
		},
	}
}
