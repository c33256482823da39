package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hunyuan-gateway/internal/cache"
	"hunyuan-gateway/internal/config"
	"hunyuan-gateway/internal/handlers"
	"hunyuan-gateway/internal/httpserver"
	"hunyuan-gateway/internal/llm"
	"hunyuan-gateway/internal/metrics"
	"hunyuan-gateway/pkg/logging/logging"
)

const gatewayLongDesc = `Serve an OpenAI-compatible chat completions API backed by the
Hunyuan streaming chat service.

Configuration is read from built-in defaults, then a YAML file
(--config, GATEWAY_CONFIG or ./gateway.yaml), then environment variables
(a .env file is loaded first when present), then command-line flags.`

type gatewayCommander struct {
	configPath string
	envFile    string
	port       string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmder := &gatewayCommander{}

	cmd := &cobra.Command{
		Use:           "gateway",
		Short:         "OpenAI-compatible gateway for the Hunyuan chat API",
		Long:          gatewayLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(cmder.envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}

			cfg, err := config.Load(cmder.configPath)
			if err != nil {
				return err
			}
			cmder.applyFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}

			return run(cfg)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&cmder.envFile, "env-file", ".env", "Environment file loaded before reading the config")
	cmd.Flags().StringVarP(&cmder.port, "port", "p", "", "Port to listen on (overrides PORT)")
	cmd.Flags().StringVar(&cmder.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	return cmd
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

func (c *gatewayCommander) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = c.port
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
}

func run(cfg *config.Config) error {
	// ----- Logger -----
	logger, err := logging.NewLogger(logging.Options{Env: cfg.Log.Env, Level: cfg.Log.Level})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Server.Port),
		zap.String("upstream_url", cfg.Upstream.URL),
		zap.Duration("upstream_timeout", cfg.Upstream.Timeout),
		zap.Strings("models", cfg.Models.Available),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("version_id", cfg.Server.VersionID),
		zap.Bool("default_credential", cfg.Upstream.APIKey != ""),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Cache.Backend == cache.BackendRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
		})
		defer redisClient.Close()

		// Fail fast if Redis is misconfigured
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.Cache.RedisAddr),
		)
	}

	// ----- Response cache -----
	cacheCfg := cache.Config{
		Backend: cfg.Cache.Backend,
		TTL:     cfg.Cache.TTL,
		Prefix:  cfg.Cache.Prefix,
	}
	exactCache := cache.NewExactCache(cacheCfg, redisClient)

	// ----- Upstream client -----
	llmClient, err := llm.NewClient(cfg.LLM(), logger)
	if err != nil {
		return err
	}
	if closer, ok := llmClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Handlers -----
	translator := llm.NewTranslator(cfg.Models.Available, cfg.Models.Fallback)
	chatHandler := handlers.NewChatHandler(
		exactCache,
		cacheCfg.TTL,
		cfg.Server.VersionID,
		translator,
		llmClient,
		cfg.Upstream.APIKey,
	)
	modelsHandler := handlers.NewModelsHandler(translator, cfg.Models.OwnedBy)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, chatHandler, modelsHandler, httpserver.Options{
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// ----- HTTP server -----
	// WriteTimeout stays zero: streamed completions can outlive any fixed
	// write deadline and are bounded by the upstream timeout instead.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.Strings("endpoints", []string{
			"POST /v1/chat/completions",
			"POST /chat/completions",
			"GET /v1/models",
		}),
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
		return nil
	case <-stop:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
