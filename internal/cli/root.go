// Package cli defines the Cobra command tree for the retain CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/retain/internal/config"
	"github.com/conorfennell/retain/internal/fsrs"
	"github.com/conorfennell/retain/internal/logger"
	"github.com/conorfennell/retain/internal/review"
	"github.com/conorfennell/retain/internal/storage"
)

// version is set via -ldflags at build time.
var version = "dev"

// Execute runs the root command.
func Execute(v string) {
	version = v
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "retain",
		Short: "Spaced-repetition review scheduler",
		Long: `retain schedules flashcard reviews with the FSRS memory model.

It keeps one memory state per card, records every review as an event and
serves the same operations over HTTP with 'retain serve'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "path to a YAML config file (default $RETAIN_CONFIG)")
	pf.String("db", "retain.db", "path to the SQLite database file")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "text", "log format: text or json")
	pf.Float64("retention", 0.9, "desired retention, between 0 and 1")
	pf.Bool("no-fuzz", false, "disable interval fuzz")
	pf.Bool("json", false, "print results as JSON")

	root.AddCommand(
		newServeCmd(),
		newReviewCmd(),
		newShowCmd(),
		newPreviewCmd(),
		newDueCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "retain %s\n", version)
		},
	}
}

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *storage.DB
	reviews *review.Service
}

// openApp loads configuration, sets up logging and opens the database.
// The caller must Close the result.
func openApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.PathFromEnv()
	}

	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	params, err := cfg.Scheduler.Params()
	if err != nil {
		return nil, err
	}
	scheduler, err := fsrs.NewScheduler(params)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	log.Debug("database opened", "path", cfg.DBPath)

	return &app{
		cfg:    cfg,
		logger: log,
		db:     db,
		reviews: review.NewService(db, scheduler,
			review.WithLogger(log),
			review.WithMaxAttempts(cfg.Review.MaxAttempts),
		),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// runApp opens the app, runs fn and closes it again.
func runApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
