// Command tutorcore hosts the operational surface of the decision layer:
// the scheduled maintenance sweeps and one-shot debug commands that run the
// classifier, analyzer and full decision pipeline against a config.
//
// The decision layer itself is a library; products embed
// internal/decision.Controller directly. This binary exists for operators.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/lessonloop/tutorcore/internal/complexity"
	"github.com/lessonloop/tutorcore/internal/config"
	"github.com/lessonloop/tutorcore/internal/decision"
	"github.com/lessonloop/tutorcore/internal/guardrails"
	"github.com/lessonloop/tutorcore/internal/health"
	"github.com/lessonloop/tutorcore/internal/intent"
	"github.com/lessonloop/tutorcore/internal/maintenance"
	"github.com/lessonloop/tutorcore/internal/observe"
	"github.com/lessonloop/tutorcore/internal/resilience"
	"github.com/lessonloop/tutorcore/internal/respcache"
	"github.com/lessonloop/tutorcore/internal/respconfig"
	"github.com/lessonloop/tutorcore/internal/router"
	"github.com/lessonloop/tutorcore/pkg/cachestore"
	cachepg "github.com/lessonloop/tutorcore/pkg/cachestore/postgres"
	cachesqlite "github.com/lessonloop/tutorcore/pkg/cachestore/sqlite"
	"github.com/lessonloop/tutorcore/pkg/provider/llm"
	"github.com/lessonloop/tutorcore/pkg/provider/llm/anyllm"
	openaiprov "github.com/lessonloop/tutorcore/pkg/provider/llm/openai"
	"github.com/lessonloop/tutorcore/pkg/statestore"
	statepg "github.com/lessonloop/tutorcore/pkg/statestore/postgres"
	statesqlite "github.com/lessonloop/tutorcore/pkg/statestore/sqlite"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath   string
	maintainOnce bool

	decideSession string
	decideUser    string
	decideSubject string
	decideSkill   string
)

var rootCmd = &cobra.Command{
	Use:           "tutorcore",
	Short:         "tutorcore - decision and caching layer operations",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run scheduled cache and state cleanup sweeps",
	Long: `Runs the maintenance sweeper against the configured stores: expired
cache entries are purged, idle adaptive-state snapshots are deleted and the
rate-limiter ledger is compacted. Without --once the sweeper keeps running on
the configured cron schedule until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runMaintain,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <message>",
	Short: "Classify a message's intent and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <message>",
	Short: "Analyze a message's complexity and print the routing decision",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

var decideCmd = &cobra.Command{
	Use:   "decide <message>",
	Short: "Run one message through the full decision pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDecide,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file and exit",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tutorcore.yaml", "path to the configuration file")
	maintainCmd.Flags().BoolVar(&maintainOnce, "once", false, "run a single sweep and exit")
	decideCmd.Flags().StringVar(&decideSession, "session", "cli", "session id")
	decideCmd.Flags().StringVar(&decideUser, "user", "", "user id")
	decideCmd.Flags().StringVar(&decideSubject, "subject", "", "declared session subject")
	decideCmd.Flags().StringVar(&decideSkill, "skill", "", "declared skill level")
	rootCmd.AddCommand(maintainCmd, classifyCmd, analyzeCmd, decideCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runMaintain(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, level := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "tutorcore",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	cacheStore, closeCache, err := openCacheStore(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	defer closeCache()

	stateStore, closeState, err := openStateStore(ctx, cfg.State)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer closeState()

	cache := newResponseCache(cfg.Cache, cacheStore, logger, metrics)
	enforcer := guardrails.NewEnforcer(cfg.Guardrails.Policy())

	sweeper := maintenance.NewSweeper(cache, stateStore, enforcer, cfg.State.IdleExpiry.Std(),
		maintenance.WithLogger(logger),
		maintenance.WithMetrics(metrics),
	)

	if maintainOnce {
		sweeper.RunOnce(ctx)
		return nil
	}

	if cfg.Metrics.ListenAddr != "" {
		checks := health.New(version,
			health.Checker{Name: "cache_store", Probe: func(ctx context.Context) error {
				if _, err := cacheStore.Get(ctx, "healthcheck"); err != nil && !errors.Is(err, cachestore.ErrNotFound) {
					return err
				}
				return nil
			}},
			health.Checker{Name: "state_store", Probe: func(ctx context.Context) error {
				if _, err := stateStore.Load(ctx, "healthcheck"); err != nil && !errors.Is(err, statestore.ErrNotFound) {
					return err
				}
				return nil
			}},
		)
		srv := serveMetrics(cfg.Metrics.ListenAddr, checks, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	// Hot-reload the log level when the config file changes on disk.
	watcher, err := config.NewWatcher(configPath, func(_, cur *config.Config) {
		level.Set(slogLevel(cur.Logging.Level))
	})
	if err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		defer watcher.Stop()
	}

	if err := sweeper.Start(cfg.Maintenance.Schedule); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	logger.Info("maintenance sweeper running",
		"schedule", cfg.Maintenance.Schedule,
		"cache_backend", cfg.Cache.Backend,
		"state_backend", cfg.State.Backend,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	sweeper.Stop()
	return nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, _ := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := buildFallbackProvider(cfg, logger)
	opts := []intent.ClassifierOption{
		intent.WithFallbackTimeout(cfg.Guardrails.FallbackTimeout.Std()),
	}
	if provider != nil {
		opts = append(opts, intent.WithProvider(provider))
	}
	classifier := intent.NewClassifier(opts...)

	res := classifier.Classify(ctx, strings.Join(args, " "), intent.Options{
		AllowFallback: provider != nil,
	})
	return printJSON(res)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, _ := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := buildFallbackProvider(cfg, logger)
	var opts []complexity.AnalyzerOption
	if provider != nil {
		opts = append(opts, complexity.WithProvider(provider))
	}
	analyzer := complexity.NewAnalyzer(opts...)
	rtr := router.New(cfg.Models.Fast, cfg.Models.Advanced)

	analysis := analyzer.Analyze(ctx, strings.Join(args, " "))
	return printJSON(struct {
		Analysis complexity.Analysis
		Route    router.Decision
	}{analysis, rtr.Route(analysis, router.Overrides{})})
}

func runDecide(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, _ := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := buildFallbackProvider(cfg, logger)

	cacheStore, closeCache, err := openCacheStore(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	defer closeCache()

	var classifierOpts []intent.ClassifierOption
	var analyzerOpts []complexity.AnalyzerOption
	if provider != nil {
		classifierOpts = append(classifierOpts, intent.WithProvider(provider))
		analyzerOpts = append(analyzerOpts, complexity.WithProvider(provider))
	}
	classifierOpts = append(classifierOpts, intent.WithFallbackTimeout(cfg.Guardrails.FallbackTimeout.Std()))

	controller := decision.NewController(
		intent.NewClassifier(classifierOpts...),
		complexity.NewAnalyzer(analyzerOpts...),
		router.New(cfg.Models.Fast, cfg.Models.Advanced),
		newResponseCache(cfg.Cache, cacheStore, logger, nil),
		guardrails.NewEnforcer(cfg.Guardrails.Policy()),
		decision.WithLogger(logger),
	)

	d, err := controller.MakeDecision(ctx, strings.Join(args, " "), decision.SessionContext{
		SessionID:  decideSession,
		UserID:     decideUser,
		Subject:    decideSubject,
		SkillLevel: decideSkill,
		StartedAt:  time.Now(),
	}, respconfig.MemorySnapshot{}, nil)
	if err != nil {
		return err
	}
	return printJSON(d)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	fmt.Printf("%s: ok (cache=%s state=%s provider=%s)\n",
		configPath, cfg.Cache.Backend, cfg.State.Backend, providerDisplay(cfg.Provider.Name))
	return nil
}

func providerDisplay(name string) string {
	if name == "" {
		return "none"
	}
	return name
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// registerBuiltinProviders installs the LLM provider factories. OpenAI uses
// the native client so the moderation endpoint is available; everything else
// goes through any-llm-go.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderConfig) (llm.Provider, error) {
		var opts []openaiprov.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaiprov.WithBaseURL(entry.BaseURL))
		}
		return openaiprov.New(entry.APIKey(), entry.Model, opts...)
	})

	for _, name := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		reg.RegisterLLM(name, func(entry config.ProviderConfig) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if key := entry.APIKey(); key != "" {
				opts = append(opts, anyllmlib.WithAPIKey(key))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(entry.Name, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("ollama", func(entry config.ProviderConfig) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})
}

// buildFallbackProvider creates the provider used for the intent and
// complexity fallback calls, wrapped in a circuit breaker so a flaky backend
// degrades to the fast path instead of stalling every turn. Returns nil when
// no provider is configured or construction fails; callers treat nil as
// "fallbacks disabled".
func buildFallbackProvider(cfg *config.Config, log *slog.Logger) llm.Provider {
	if cfg.Provider.Name == "" {
		log.Info("no llm provider configured, fallback calls disabled")
		return nil
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	p, err := reg.CreateLLM(cfg.Provider)
	if err != nil {
		log.Warn("llm provider unavailable, fallback calls disabled",
			"name", cfg.Provider.Name, "error", err)
		return nil
	}
	return resilience.NewLLMFallback(p, cfg.Provider.Name, resilience.FallbackConfig{})
}

func openCacheStore(ctx context.Context, cfg config.CacheConfig) (cachestore.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := cachesqlite.NewStore(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.BackendPostgres:
		s, err := cachepg.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return cachestore.NewMemStore(), func() {}, nil
	}
}

func openStateStore(ctx context.Context, cfg config.StateConfig) (statestore.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := statesqlite.NewStore(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.BackendPostgres:
		s, err := statepg.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return statestore.NewMemStore(), func() {}, nil
	}
}

func newResponseCache(cfg config.CacheConfig, store cachestore.Store, log *slog.Logger, m *observe.Metrics) *respcache.Cache {
	opts := []respcache.Option{respcache.WithLogger(log)}
	if m != nil {
		opts = append(opts, respcache.WithMetrics(m))
	}
	if cfg.HotCapacity > 0 || cfg.HotTTL > 0 {
		opts = append(opts, respcache.WithHotCache(cfg.HotCapacity, cfg.HotTTL.Std()))
	}
	if cfg.TTL != (config.CacheTTLConfig{}) {
		opts = append(opts, respcache.WithTTLTiers(cfg.TTL.Tiers()))
	}
	return respcache.New(store, opts...)
}

func newLogger(cfg config.LoggingConfig) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h), level
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func serveMetrics(addr string, checks *health.Handler, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	checks.Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics endpoint failed", "error", err)
		}
	}()
	return srv
}
