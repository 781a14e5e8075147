package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solenne/hearth/internal/config"
	"github.com/solenne/hearth/internal/logger"
	"github.com/solenne/hearth/internal/observability"
	"github.com/solenne/hearth/internal/server"
	"github.com/solenne/hearth/internal/tracing"
	"github.com/solenne/hearth/pkg/cache"
	"github.com/solenne/hearth/pkg/chatlog"
	"github.com/solenne/hearth/pkg/memory"
	"github.com/solenne/hearth/pkg/prompt"
	"github.com/solenne/hearth/pkg/quotes"
	"github.com/solenne/hearth/pkg/ratelimit"
	"github.com/solenne/hearth/pkg/relay"
	"github.com/solenne/hearth/pkg/upstream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat relay server",
	Long: `Run the chat relay server in the foreground.
The server answers POST /chat requests until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("server is already running (PID file: %s)", pidFile)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()
	zlog := lg.Zerolog()

	observability.EnsureRegistered()

	if err := writePIDFile(pidFile); err != nil {
		return err
	}
	defer os.Remove(pidFile)

	if err := tracing.InitOpenTelemetry("hearth"); err != nil {
		zlog.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracing.ShutdownOpenTelemetry(ctx)
	}()

	// Quote corpus; an empty corpus only disables the flavor quotes.
	corpus, err := quotes.Load(cfg.Quotes.Path)
	if err != nil {
		zlog.Warn().Err(err).Str("path", cfg.Quotes.Path).Msg("Failed to load quote corpus, starting empty")
		corpus = &quotes.Corpus{}
	}
	if cfg.Quotes.Watch {
		watcher, err := quotes.NewWatcher(corpus, cfg.Quotes.Path, zlog)
		if err != nil {
			zlog.Warn().Err(err).Msg("Failed to watch quote corpus")
		} else {
			defer watcher.Stop()
		}
	}

	// Durable chat log with scheduled retention.
	var chatLog relay.ChatLog
	var history server.HistorySource
	if cfg.ChatLog.Enabled {
		store, err := chatlog.Open(cfg.ChatLog.Path, zlog)
		if err != nil {
			return fmt.Errorf("failed to open chat log: %w", err)
		}
		defer store.Close()
		chatLog = store
		history = store

		retention := chatlog.NewRetention(store,
			time.Duration(cfg.ChatLog.RetentionDays)*24*time.Hour,
			cfg.ChatLog.MaxMessages,
			cfg.ChatLog.RetentionSchedule,
			zlog,
		)
		if err := retention.Start(); err != nil {
			zlog.Warn().Err(err).Msg("Failed to start chat log retention")
		} else {
			defer retention.Stop()
		}
	}

	provider, err := upstream.NewProvider(cfg.Upstream.Vendor, cfg.Upstream.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	invoker := upstream.NewInvoker(provider,
		cfg.Upstream.MaxAttempts,
		time.Duration(cfg.Upstream.BaseDelayMS)*time.Millisecond,
		zlog,
	)

	limiter := ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimit.Window())
	mem := memory.NewStore(cfg.Memory.Exchanges)

	r := relay.New(relay.Config{
		Limiter:         limiter,
		Memory:          mem,
		Corpus:          corpus,
		Cache:           cache.New(cfg.Cache.Capacity),
		Prompts:         prompt.NewBuilder(cfg.Prompt.Dir),
		Invoker:         invoker,
		ChatLog:         chatLog,
		Logger:          zlog,
		Model:           cfg.Upstream.Model,
		Temperature:     cfg.Upstream.Temperature,
		MaxTokens:       cfg.Upstream.MaxTokens,
		SampleCount:     cfg.Prompt.SampleCount,
		MaxPromptQuotes: cfg.Prompt.MaxQuotes,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := relay.NewSweeper(limiter, mem,
		time.Duration(cfg.Memory.IdleSweepMinutes)*time.Minute,
		cfg.RateLimit.Window(),
	)
	if err := sweeper.Start(); err == nil {
		defer sweeper.Stop()
	}

	srv, err := server.New(server.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		AllowedOrigin: cfg.Server.AllowedOrigin,
		HistoryLimit:  cfg.Server.HistoryLimit,
	}, r, history, zlog)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		zlog.Info().Msg("Shutdown signal received")
		return srv.Stop()
	}
}

func writePIDFile(pidFile string) error {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

func getPIDFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/hearth.pid"
	}
	return filepath.Join(home, ".hearth", "hearth.pid")
}

func isRunning(pidFile string) bool {
	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		return false
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}

	var pid int
	_, err = fmt.Sscanf(string(data), "%d", &pid)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so probe with signal 0
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
