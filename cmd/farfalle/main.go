// ABOUTME: Entry point for the farfalle answer engine server
// ABOUTME: Wires config, store, search, rate limiting and the HTTP API

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/mkfischer/farfalle/internal/chat"
	"github.com/mkfischer/farfalle/internal/config"
	"github.com/mkfischer/farfalle/internal/llm"
	"github.com/mkfischer/farfalle/internal/search"
	"github.com/mkfischer/farfalle/internal/server"
	"github.com/mkfischer/farfalle/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __            __       _ _
 / _| __ _ _ __/ _| __ _| | | ___
| |_ / _' | '__| |_ / _' | | |/ _ \
|  _| (_| | |  |  _| (_| | | |  __/
|_|  \__,_|_|  |_|  \__,_|_|_|\___|
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: farfalle <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the answer engine server")
		fmt.Println("  health   Check server health")
		fmt.Println("  version  Print version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by FARFALLE_CONFIG, or falls back
// to the environment-variable surface when no file is configured.
func loadConfig() (*config.Config, string, error) {
	if path := os.Getenv("FARFALLE_CONFIG"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("validating config: %w", err)
	}
	return cfg, "(environment)", nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configSource, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configSource)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Search:     %s\n", cfg.Search.Provider)
	green.Print("    ▶ ")
	if cfg.Database.Enabled {
		fmt.Printf("Database:   %s\n", cfg.Database.Path)
	} else {
		fmt.Printf("Database:   disabled\n")
	}
	green.Print("    ▶ ")
	if cfg.RateLimit.Enabled {
		fmt.Printf("Rate limit: enabled\n")
	} else {
		fmt.Printf("Rate limit: disabled\n")
	}
	fmt.Println()

	logger.Info("starting farfalle",
		"http_addr", cfg.Server.HTTPAddr,
		"search_provider", cfg.Search.Provider,
		"database_enabled", cfg.Database.Enabled,
		"rate_limit_enabled", cfg.RateLimit.Enabled,
	)

	var st store.Store
	if cfg.Database.Enabled {
		sqlStore, err := store.NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		st = sqlStore
	} else {
		st = store.NewNoopStore()
	}
	defer st.Close()

	searcher, err := search.New(search.Config{
		Provider: cfg.Search.Provider,
		BraveKey: cfg.Search.BraveKey,
		SearxURL: cfg.Search.SearxURL,
	})
	if err != nil {
		return fmt.Errorf("creating search provider: %w", err)
	}

	var limiter server.Limiter
	if cfg.RateLimit.Enabled {
		redisLimiter, err := server.NewRedisLimiter(ctx, cfg.RateLimit.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("creating rate limiter: %w", err)
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
	}

	orchestrator := chat.NewOrchestrator(st, searcher, llm.Config{
		OpenAIKey:    cfg.Providers.OpenAIKey,
		AnthropicKey: cfg.Providers.AnthropicKey,
	}, logger)

	srv := server.NewServer(orchestrator, st, limiter, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/health", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
