package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/linkscrub/linkscrub/cache"
	"github.com/linkscrub/linkscrub/config"
	"github.com/linkscrub/linkscrub/fetcher"
	"github.com/linkscrub/linkscrub/logger"
	"github.com/linkscrub/linkscrub/ratelimit"
	"github.com/linkscrub/linkscrub/refresh"
	"github.com/linkscrub/linkscrub/retry"
	"github.com/linkscrub/linkscrub/ruleset"
	"github.com/linkscrub/linkscrub/scrub"
	"github.com/linkscrub/linkscrub/server"
)

const (
	defaultAddr       = ":8080"
	defaultConfigFile = "./config.yaml"
	defaultLogLevel   = "info"
)

func main() {
	addr := getEnv("ADDR", defaultAddr)
	configFile := getEnv("CONFIG_FILE", defaultConfigFile)
	redisURL := getEnv("REDIS_URL", "")
	logLevel := getEnv("LOG_LEVEL", defaultLogLevel)

	log := logger.NewJSON(os.Stderr, logger.ParseLevel(logLevel))

	log.Info("starting linkscrub API server", "log_level", logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cfg *config.Config
	if _, statErr := os.Stat(configFile); statErr == nil {
		log.Info("loading config from file", "file", configFile)
		loaded, err := config.Load(configFile)
		if err != nil {
			log.Error("failed to load config from file", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		log.Info("using default configuration (config file not found)", "checked", configFile)
		cfg = config.New()
	}
	if cfg.Log.Level != "" {
		log = logger.NewJSON(os.Stderr, logger.ParseLevel(cfg.Log.Level))
	}

	var redisClient *redis.Client
	var snapshots cache.Store = cache.NewMemoryStore()
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Error("failed to parse redis URL", "error", err)
			os.Exit(1)
		}

		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("failed to connect to redis", "error", err, "url", redisURL)
			os.Exit(1)
		}

		log.Info("redis connection established", "url", redisURL)
		snapshots = cache.NewRedisStore(redisClient, "")
	} else {
		log.Info("using in-memory snapshot store (REDIS_URL not set)")
	}

	rules := ruleset.NewStore()

	refresher := refresh.New(refresh.Options{
		SourceURL: cfg.Rules.GetURL(),
		Interval:  cfg.Rules.GetRefreshInterval(),
		Retrier:   retry.New(fetcher.New(cfg.Rules.Fetch), cfg.Rules.Retry),
		Store:     rules,
		Snapshots: snapshots,
		Throttle:  ratelimit.NewThrottle(cfg.Rules.GetMinRefreshInterval()),
		Logger:    log,
	})

	if err := refresher.Bootstrap(ctx); err != nil {
		log.Warn("initial rules load failed, serving 503 until refresh succeeds", "error", err)
	}
	go refresher.Run(ctx)

	srv := server.New(scrub.New(log), rules, refresher, log, &server.Config{
		RedisClient:       redisClient,
		RateLimitRequests: cfg.Server.RateLimit.GetRequests(),
		RateLimitWindow:   cfg.Server.RateLimit.GetWindow(),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if os.Getenv("ADDR") == "" {
		addr = cfg.Server.GetAddr()
	}

	if err := srv.StartWithShutdown(ctx, addr); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
