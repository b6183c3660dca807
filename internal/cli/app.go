package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/hllm/internal/cache"
	"github.com/ppiankov/hllm/internal/conversation"
	"github.com/ppiankov/hllm/internal/llm"
	"github.com/ppiankov/hllm/internal/model"
	"github.com/ppiankov/hllm/internal/orchestrator"
	"github.com/ppiankov/hllm/internal/pipeline"
	"github.com/ppiankov/hllm/internal/score"
	"github.com/ppiankov/hllm/internal/team"
	"github.com/ppiankov/hllm/internal/tracing"
	"github.com/ppiankov/hllm/internal/util"
	"github.com/ppiankov/hllm/internal/validate"
	"github.com/ppiankov/hllm/internal/verify"
	"github.com/ppiankov/hllm/internal/worker"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// app holds the wired components for one command invocation
type app struct {
	cfg           model.Config
	logger        *slog.Logger
	coordinator   *pipeline.Coordinator
	conversations *conversation.Store
	closers       []func() error
}

// Close releases storage and flushes traces
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// loadConfig merges defaults, the config file, and HLLM_* env vars, then validates
func loadConfig() (model.Config, error) {
	cfg := model.DefaultConfig()

	// Registering defaults lets AutomaticEnv see keys absent from the file
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("encode defaults: %w", err)
	}
	var defaults map[string]any
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return cfg, fmt.Errorf("decode defaults: %w", err)
	}
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(cfg model.Config) *slog.Logger {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return util.NewLogger(os.Stderr, level, cfg.Logging.Format)
}

// expandHome replaces a leading ~ with the user's home directory
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// openStorage opens the shared store backing the result cache and conversations.
// An empty cache dir keeps everything in memory for this process only.
func openStorage(cfg model.Config, logger *slog.Logger) (cache.Cache, func() error, error) {
	memory := cache.NewMemoryCache(cfg.Cache.TTL, 10*time.Minute)
	if cfg.Cache.Dir == "" {
		return memory, func() error { return nil }, nil
	}

	disk, err := cache.OpenBadger(cache.BadgerConfig{
		Path:       expandHome(cfg.Cache.Dir),
		TTL:        cfg.Cache.TTL,
		GCInterval: 10 * time.Minute,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	return cache.NewLayeredCache(memory, disk), disk.Close, nil
}

// newApp wires every component from configuration
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	shutdown, err := tracing.Init(ctx, cfg.Tracing, version, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(ctx)
	})

	store, closeStore, err := openStorage(cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeStore)
	a.conversations = conversation.NewStore(store, cfg.Conversation.TTL)

	opts := llm.Options{MaxRetries: cfg.Orchestrator.MaxRetries, Logger: logger}
	if cfg.Orchestrator.RateLimit > 0 {
		opts.Limiter = worker.NewLimiter(cfg.Orchestrator.RateLimit, cfg.Orchestrator.Burst)
	}
	adapters := llm.NewAdapters(cfg, opts)

	scorer := score.NewFromConfig(cfg)

	var narrator team.Narrator
	if cfg.Team.Narrator == "llm" {
		narrator, err = newLLMNarrator(cfg, logger)
		if err != nil {
			logger.Warn("llm narrator unavailable, using templates", "error", err)
		}
	}

	var validator *validate.Validator
	if cfg.Verification.CheckLinks {
		validator = validate.NewValidator(cfg.Verification, cfg.Network, logger)
	}

	deps := pipeline.Deps{
		Orchestrator:  orchestrator.New(orchestrator.OptionsFromModel(cfg.Orchestrator), logger),
		Adapters:      adapters,
		Scorer:        scorer,
		Team:          team.New(scorer, narrator, logger),
		Verifier:      verify.New(validator, logger),
		CacheTTL:      cfg.Cache.TTL,
		Conversations: a.conversations,
		MaxContext:    cfg.Conversation.MaxContextMessages,
		Logger:        logger,
	}
	if cfg.Cache.Enabled {
		deps.Cache = store
	}
	a.coordinator = pipeline.New(deps)

	return a, nil
}

func newLLMNarrator(cfg model.Config, logger *slog.Logger) (team.Narrator, error) {
	p, ok := cfg.Provider(cfg.Team.Provider)
	if !ok {
		return nil, fmt.Errorf("team.provider %q is not configured", cfg.Team.Provider)
	}
	config := llm.ConfigFromModel(p, cfg.Generation, cfg.Network)
	config.Logger = logger
	adapter, err := llm.NewAdapter(config)
	if err != nil {
		return nil, err
	}
	return team.LLMNarrator{Adapter: adapter, Timeout: cfg.Orchestrator.AdapterTimeout}, nil
}
