// Package daemon is the atrium building-assistant process: it accepts
// free-text queries from the HTTP API and the optional Matrix channel,
// routes them through an ordered intent cascade, resolves devices, and
// answers with live data from the building-management API. Queries no
// rule matches fall through to an LLM function-calling loop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atrium-labs/atrium/internal/cache"
	"github.com/atrium-labs/atrium/internal/channel"
	"github.com/atrium-labs/atrium/internal/channel/matrix"
	"github.com/atrium-labs/atrium/internal/command"
	"github.com/atrium-labs/atrium/internal/history"
	"github.com/atrium-labs/atrium/internal/httpapi"
	"github.com/atrium-labs/atrium/internal/inferrix"
	"github.com/atrium-labs/atrium/internal/intent"
	"github.com/atrium-labs/atrium/internal/llm"
	"github.com/atrium-labs/atrium/internal/resolve"
)

// Daemon is the main atrium process.
type Daemon struct {
	config   *Config
	api      *inferrix.Client
	resolver *resolve.Resolver
	executor *command.Executor
	provider llm.Provider // nil when no LLM is configured
	store    history.Store
	keyCache cache.Cache
	matrix   *matrix.Channel

	startedAt time.Time
}

// New wires a daemon from configuration. The history store and cache
// backends are opened here; Run starts the listeners.
func New(ctx context.Context, cfg *Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	d := &Daemon{
		config:    cfg,
		resolver:  resolve.New(),
		startedAt: time.Now(),
	}

	d.api = inferrix.New(inferrix.Config{
		BaseURL:           cfg.Inferrix.BaseURL,
		Token:             cfg.Inferrix.Token,
		PageSize:          cfg.Inferrix.PageSize,
		RequestsPerSecond: cfg.Inferrix.RequestsPerSecond,
		Burst:             cfg.Inferrix.Burst,
	})

	d.keyCache = newKeyCache(cfg.Cache)
	d.executor = command.NewExecutor(&cachedTelemetry{api: d.api, cache: d.keyCache})

	switch cfg.LLM.Provider {
	case "anthropic":
		d.provider = llm.NewAnthropic(cfg.LLM.APIKey, cfg.LLM.Model)
	case "openai":
		d.provider = llm.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	case "":
		slog.Warn("no LLM provider configured — unmatched queries get a canned reply")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLM.Provider)
	}
	if d.provider != nil {
		slog.Info("LLM provider configured", "provider", d.provider.Name(), "model", cfg.LLM.Model)
	}

	store, err := openHistory(ctx, cfg.History)
	if err != nil {
		return nil, err
	}
	d.store = store

	if cfg.Matrix.Enabled {
		d.matrix = matrix.New(matrix.Config{
			Homeserver:   cfg.Matrix.Homeserver,
			UserID:       cfg.Matrix.UserID,
			Password:     cfg.Matrix.Password,
			ServerName:   cfg.Matrix.ServerName,
			AllowedUsers: cfg.Matrix.AllowedUsers,
			DataDir:      cfg.Matrix.DataDir,
		})
	}

	return d, nil
}

func newKeyCache(cfg CacheConfig) cache.Cache {
	ttl := 5 * time.Minute
	if cfg.TTL != "" {
		if parsed, err := time.ParseDuration(cfg.TTL); err == nil {
			ttl = parsed
		}
	}
	switch cfg.Backend {
	case "redis":
		return cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, ttl)
	case "none":
		return cache.Nop{}
	default:
		return cache.NewMemory(cfg.MaxEntries, ttl)
	}
}

func openHistory(ctx context.Context, cfg HistoryConfig) (history.Store, error) {
	switch cfg.Backend {
	case "postgres":
		store, err := history.OpenPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres history: %w", err)
		}
		return store, nil
	default:
		store, err := history.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite history: %w", err)
		}
		return store, nil
	}
}

// Run starts the HTTP API and the optional Matrix channel, then blocks
// until ctx is cancelled or a listener fails.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("atrium daemon running",
		"name", d.config.Name,
		"http", d.config.HTTPAddr,
		"inferrix", d.config.Inferrix.BaseURL,
		"matrix", d.config.Matrix.Enabled,
	)

	handler := httpapi.NewHandler(d.config.Name, d, d.api)
	router := httpapi.NewRouter(handler, d.config.Auth.JWTSecret)
	srv := &http.Server{Addr: d.config.HTTPAddr, Handler: router}

	errCh := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if d.matrix != nil {
		go func() {
			slog.Info("starting matrix channel")
			if err := d.matrix.Start(ctx, d.onMatrixMessage); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("matrix channel: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if d.matrix != nil {
		d.matrix.Stop()
	}
	if err := d.store.Close(); err != nil {
		slog.Warn("closing history store failed", "error", err)
	}

	slog.Info("atrium daemon stopped")
	return runErr
}

// onMatrixMessage adapts Matrix rooms onto conversations: the room ID is the
// conversation ID.
func (d *Daemon) onMatrixMessage(ctx context.Context, msg channel.Message) error {
	reply, err := d.Answer(ctx, msg.RoomID, msg.Content)
	if err != nil {
		return err
	}
	return d.matrix.Send(ctx, channel.Response{RoomID: msg.RoomID, Content: reply})
}

// Answer processes one user query to completion and returns the reply text.
// Every failure becomes a user-facing message; a panic anywhere below is
// converted into a generic reply carrying a diagnostic reference ID.
func (d *Daemon) Answer(ctx context.Context, conversationID, message string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			ref := uuid.NewString()[:8]
			slog.Error("query handler panicked", "ref", ref, "panic", r)
			reply = fmt.Sprintf("Something unexpected went wrong while handling that. Please try again (ref %s).", ref)
			err = nil
		}
	}()

	start := time.Now()
	slog.Info("processing query", "conversation", conversationID, "len", len(message))

	d.appendTurn(ctx, conversationID, "user", message)

	reply = d.dispatch(ctx, conversationID, message)

	d.appendTurn(ctx, conversationID, "assistant", reply)
	slog.Info("reply ready",
		"conversation", conversationID,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"len", len(reply),
	)
	return reply, nil
}

// dispatch walks the route table top to bottom; the first matching rule
// handles the query. Handler errors are converted to user-facing text here,
// at the handler boundary.
func (d *Daemon) dispatch(ctx context.Context, conversationID, message string) string {
	q := intent.Parse(message)
	for _, rule := range d.routes() {
		if !rule.match(q) {
			continue
		}
		slog.Info("query routed", "rule", rule.name)
		reply, err := rule.handle(ctx, q)
		if err != nil {
			return describeError(err)
		}
		return reply
	}
	return d.fallbackLLM(ctx, conversationID, message)
}

// appendTurn records one transcript turn; persistence failures are logged,
// never surfaced to the user.
func (d *Daemon) appendTurn(ctx context.Context, conversationID, role, content string) {
	err := d.store.Append(ctx, conversationID, history.Message{Role: role, Content: content})
	if err != nil {
		slog.Warn("history append failed", "conversation", conversationID, "error", err)
	}
}

// describeError maps handler failures onto the user-facing error taxonomy.
func describeError(err error) string {
	var notFound *resolve.NotFoundError
	if errors.As(err, &notFound) {
		if len(notFound.Suggestions) == 0 {
			return fmt.Sprintf("I couldn't find a device matching %q, and the device directory is currently empty.", notFound.Phrase)
		}
		return fmt.Sprintf("I couldn't find a device matching %q. Did you mean one of these?\n- %s",
			notFound.Phrase, strings.Join(notFound.Suggestions, "\n- "))
	}

	var rangeErr *command.RangeError
	if errors.As(err, &rangeErr) {
		return "Sorry, I can't do that: " + rangeErr.Error() + "."
	}

	var keyErr *command.KeyUnavailableError
	if errors.As(err, &keyErr) {
		return "Sorry, " + keyErr.Error() + "."
	}

	var apiErr *inferrix.APIError
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}

	return "Sorry, that didn't work: " + err.Error()
}

// cachedTelemetry decorates the vendor client with the bounded TTL cache
// for per-device key lists. Keys change rarely but are fetched on every
// write; reads and writes pass through untouched.
type cachedTelemetry struct {
	api   *inferrix.Client
	cache cache.Cache
}

const keyListSeparator = "\n"

func (t *cachedTelemetry) TelemetryKeys(ctx context.Context, deviceID string) ([]string, error) {
	cacheKey := "telemetry-keys:" + deviceID
	if cached, ok := t.cache.Get(ctx, cacheKey); ok {
		if cached == "" {
			return nil, nil
		}
		return strings.Split(cached, keyListSeparator), nil
	}
	keys, err := t.api.TelemetryKeys(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	t.cache.Set(ctx, cacheKey, strings.Join(keys, keyListSeparator))
	return keys, nil
}

func (t *cachedTelemetry) LatestTelemetry(ctx context.Context, deviceID, key string) (inferrix.Reading, error) {
	return t.api.LatestTelemetry(ctx, deviceID, key)
}

func (t *cachedTelemetry) WriteTelemetry(ctx context.Context, deviceID, key string, value float64) error {
	return t.api.WriteTelemetry(ctx, deviceID, key, value)
}
