package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stevemurr/dataset-server/config"
	"github.com/stevemurr/dataset-server/logging"
	"github.com/stevemurr/dataset-server/query"
	"github.com/stevemurr/dataset-server/store"
)

var rootCmd = &cobra.Command{
	Use:   "dataset-server",
	Short: "Schemaless dataset store with grouping, sorting and stats",
	Long: `dataset-server stores arbitrary JSON records in named datasets and answers
group-by, sort-by and field statistics queries over them.

Running without a subcommand starts the HTTP server.

Examples:
  # Serve from a SQLite database under ./data
  dataset-server --backend sqlite --data-dir ./data

  # Load a file of records into the "sales" dataset
  dataset-server import sales records.ndjson

  # Show the field kinds seen in a dataset
  dataset-server stats sales`,
	SilenceUsage: true,
	RunE:         runServe,
}

var envFile string

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file read below the environment")

	rootCmd.AddCommand(serveCmd, importCmd, datasetsCmd, statsCmd)
}

// app is the set of dependencies every command starts from.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store store.Store
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags(), envFile)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	st, err := store.New(cmd.Context(), cfg.Backend, store.Options{
		DataDir:     cfg.DataDir,
		PostgresDSN: cfg.PostgresDSN,
		Logger:      log,
	})
	if err != nil {
		log.Error("failed to create store", zap.String("backend", cfg.Backend), zap.Error(err))
		return nil, err
	}
	return &app{cfg: cfg, log: log, store: st}, nil
}

func (a *app) service(opts ...query.Option) *query.Service {
	opts = append([]query.Option{
		query.WithLogger(a.log),
		query.WithSampleSize(a.cfg.SampleSize),
	}, opts...)
	return query.NewService(a.store, opts...)
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close store", zap.Error(err))
	}
	_ = a.log.Sync()
}
