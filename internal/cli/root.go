package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/listen/internal/control"
	"github.com/vietddude/listen/internal/core/config"
	"github.com/vietddude/listen/internal/core/domain"
	"github.com/vietddude/listen/internal/infra/chain"
	"github.com/vietddude/listen/internal/infra/chain/cometbft"
	"github.com/vietddude/listen/internal/listening/emitter"
	"github.com/vietddude/listen/internal/listening/filter"
)

// options holds the parsed command line.
type options struct {
	cfgPath string
	isDebug bool
	chainID string
	events  []string
	output  string

	// resolved from events and positional arguments
	filters []filter.Filter
}

type runFunc func(ctx context.Context, opts *options) error

func Execute() {
	if err := newRootCmd(runListen).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(run runFunc) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "listen --chain <CHAIN_ID> [--events NewBlock|Tx ...]",
		Short: "Listen to and display events from a chain",
		Long: `Listen attaches to the websocket of a CometBFT node and prints the events
matching the selected filters. Without --events both NewBlock and Tx events
are shown.`,
		Example: `  listen --chain cosmoshub-4
  listen --chain cosmoshub-4 --events Tx
  listen --chain cosmoshub-4 --events Tx NewBlock --output json`,
		// Tokens following --events arrive as positional arguments.
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && !cmd.Flags().Changed("events") {
				return fmt.Errorf("unexpected argument %q: event types must follow --events", args[0])
			}
			tokens := append(append([]string(nil), opts.events...), args...)
			filters, err := filter.ParseAll(tokens)
			if err != nil {
				return err
			}
			opts.filters = filters
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), opts)
		},
	}

	addPersistentFlags(cmd.PersistentFlags(), opts)
	addListenFlags(cmd.Flags(), opts)
	_ = cmd.MarkFlagRequired("chain")

	cmd.AddCommand(newChainsCmd(opts))
	return cmd
}

func addPersistentFlags(fs *pflag.FlagSet, opts *options) {
	fs.StringVar(&opts.cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	fs.BoolVar(&opts.isDebug, "debug", false, "enable debug logging")
}

func addListenFlags(fs *pflag.FlagSet, opts *options) {
	fs.StringVarP(&opts.chainID, "chain", "c", "", "identifier of the chain to listen for events from")
	fs.StringSliceVarP(&opts.events, "events", "e", nil, "event types to listen for: NewBlock, Tx (repeatable, default all)")
	fs.StringVarP(&opts.output, "output", "o", string(emitter.FormatText), "output format: text or json")
}

// setupLogging installs the default logger. The json format logs to stderr.
func setupLogging(cfg config.LoggingConfig, isDebug bool) {
	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Level == "error":
		slogLevel = slog.LevelError
	}

	if cfg.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
		return
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}

func loadConfig(path string) (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(path)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		return nil, err
	}
	return cfg, nil
}

func runListen(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts.cfgPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging, opts.isDebug)

	chainCfg, err := cfg.FindChain(domain.ChainID(opts.chainID))
	if err != nil {
		slog.Error("Unknown chain", "error", err)
		return err
	}

	em, err := emitter.New(emitter.Format(opts.output), os.Stdout)
	if err != nil {
		slog.Error("Invalid output format", "error", err)
		return err
	}

	policy, err := chain.ParseBackpressure(chainCfg.EventSource.Backpressure)
	if err != nil {
		slog.Error("Invalid event source config", "chain", chainCfg.ChainID, "error", err)
		return err
	}

	backoff := chain.DefaultBackoff()
	backoff.MaxAttempts = chainCfg.EventSource.MaxResubscribe

	session := uuid.NewString()
	src, err := cometbft.NewSource(cometbft.Config{
		ChainID:       chainCfg.ChainID,
		WebsocketAddr: chainCfg.WebsocketAddr,
		Subscriber:    "listen-" + session,
		FlushInterval: chainCfg.EventSource.FlushInterval,
		Backoff:       backoff,
	}, slog.Default())
	if err != nil {
		slog.Error("Failed to create event source", "error", err)
		return err
	}

	listener := control.NewListener(control.Config{
		ChainID: chainCfg.ChainID,
		Filters: filter.NewSet(opts.filters...),
		Stream: chain.StreamConfig{
			BufferSize:   chainCfg.EventSource.BufferSize,
			Backpressure: policy,
		},
		Port:     cfg.Server.Port,
		GRPCPort: cfg.Server.GRPCPort,
		Session:  session,
	}, src, em, slog.Default())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := listener.Run(ctx); err != nil {
		slog.Error(fmt.Sprintf("[%s] listen failed", chainCfg.ChainID), "error", err)
		return err
	}

	stats := listener.Stats()
	slog.Info("Listener stopped",
		"batches", stats.Batches,
		"reported", stats.Reported,
		"errors", stats.Errors)
	return nil
}
