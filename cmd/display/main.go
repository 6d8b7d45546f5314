package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"waterheater-panel/config"
	"waterheater-panel/internal/binder"
	"waterheater-panel/internal/channel"
	"waterheater-panel/internal/controllers"
	"waterheater-panel/internal/display"
	"waterheater-panel/internal/kafka"
	"waterheater-panel/internal/redis"
	"waterheater-panel/internal/repositories"
	"waterheater-panel/internal/websocket"
	"waterheater-panel/pkg/middleware"
	"waterheater-panel/pkg/utils"
)

const channelTokenTTL = 24 * time.Hour

func main() {
	os.Exit(run())
}

// run wires the display and blocks until shutdown. Deferred cleanup runs
// before main exits with the returned code.
func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := newLogger(cfg)
	log.Logger = logger
	metrics := config.GetMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start metrics server on separate port
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", config.MetricsHandler())
		metricsServer := &http.Server{
			Addr:    ":" + cfg.PrometheusPort,
			Handler: metricsMux,
		}
		log.Info().Str("port", cfg.PrometheusPort).Msg("metrics server starting")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURLs, cfg.RedisPass)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	doc, term := newDocument(cfg, redisClient)
	seedTemperature(ctx, cfg, doc)

	var journal *repositories.EventRepository
	var mongoClient *mongo.Client
	if cfg.MongoURI != "" {
		var repo *repositories.EventRepository
		mongoClient, repo, err = openJournal(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open event journal")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoClient.Disconnect(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("mongo disconnect error")
			}
		}()
		journal = repo
	}

	var connected atomic.Bool
	onStatus := func(ok bool) {
		connected.Store(ok)
		metrics.SetChannelConnected(ok)
	}
	ch, err := newChannel(cfg, logger, redisClient, onStatus)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create channel")
	}

	opts := []binder.Option{
		binder.WithPolicy(binder.PolicyFor(cfg.AppEnv)),
		binder.WithLogger(logger),
		binder.WithMetrics(metrics),
	}
	if journal != nil {
		opts = append(opts, binder.WithRecorder(journal))
	}
	b := binder.New(doc, opts...)

	bindDone := make(chan error, 1)
	go func() {
		bindDone <- b.Bind(ctx, ch)
	}()

	// HTTP surface
	if cfg.AppEnv == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.MetricsMiddleware(metrics))

	var lister controllers.EventLister
	if journal != nil {
		lister = journal
	}
	displayController := controllers.NewDisplayController(doc, lister, cfg.DisplayName)
	displayController.AddCheck("channel", func(context.Context) error {
		if !connected.Load() {
			return errors.New("channel not connected")
		}
		return nil
	})
	if redisClient != nil {
		displayController.AddCheck("redis", func(ctx context.Context) error {
			if !redisClient.IsAvailable(ctx) {
				return errors.New("redis unavailable")
			}
			return nil
		})
	}

	if mongoClient != nil {
		displayController.AddCheck("mongo", func(ctx context.Context) error {
			return mongoClient.Ping(ctx, nil)
		})
	}

	var apiMiddleware []gin.HandlerFunc
	if cfg.APIJWTSecret != "" {
		apiMiddleware = append(apiMiddleware, middleware.AuthMiddleware(cfg.APIJWTSecret))
	}
	displayController.RegisterRoutes(router, apiMiddleware...)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}
	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	if term != nil {
		go func() {
			if err := term.Run(ctx); err != nil {
				log.Error().Err(err).Msg("terminal display failed")
			}
			stop()
		}()
	}

	code := 0
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-bindDone:
		code = exitCode(err)
		if code != 0 {
			log.Error().Err(err).Msg("channel binding stopped")
		} else {
			log.Info().Msg("channel ended")
		}
	}
	stop()

	if err := ch.Close(); err != nil {
		log.Error().Err(err).Msg("channel close error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	log.Info().Int("code", code).Msg("display exited")
	return code
}

// exitCode maps the binding's result to a process exit code. Shutdown and a
// closed channel are clean exits; anything else, such as a strict-mode
// decode failure, is not.
func exitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, channel.ErrClosed) {
		return 0
	}
	return 1
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.DisplayBackend == config.BackendTerminal {
		// the terminal page owns the tty
		path := filepath.Join(os.TempDir(), "waterheater-panel.log")
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err == nil {
			out = f
		} else {
			out = io.Discard
		}
	}
	if cfg.LogPretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "display").Logger()
}

func newDocument(cfg *config.Config, redisClient *redis.Client) (display.Document, *display.TerminalDocument) {
	defs := display.ControlElements()
	switch cfg.DisplayBackend {
	case config.BackendRedis:
		doc := display.NewRedisDocument(redisClient, cfg.DisplayName, defs)
		log.Info().Str("key", doc.Key()).Msg("display stored in redis hash")
		return doc, nil
	case config.BackendTerminal:
		term := display.NewTerminalDocument(cfg.DisplayName, defs)
		return term, term
	default:
		return display.NewMemoryDocument(defs), nil
	}
}

func seedTemperature(ctx context.Context, cfg *config.Config, doc display.Document) {
	temp := float64(display.DefaultInitialTemperature)
	if cfg.TemperatureFile != "" {
		var err error
		temp, err = display.LoadInitialTemperature(cfg.TemperatureFile, temp)
		if err != nil {
			log.Warn().Err(err).Float64("fallback", temp).Msg("using default initial temperature")
		}
	}
	if err := display.SeedTemperature(ctx, doc, temp); err != nil {
		log.Error().Err(err).Msg("failed to seed initial temperature")
	}
}

func openJournal(ctx context.Context, cfg *config.Config) (*mongo.Client, *repositories.EventRepository, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.MongoURI).
		SetMaxPoolSize(10).
		SetSocketTimeout(10 * time.Second)
	if cfg.MongoUser != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.MongoUser,
			Password: cfg.MongoPassword,
		})
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	repo, err := repositories.NewEventRepository(connectCtx, client.Database(cfg.DBName))
	if err != nil {
		client.Disconnect(context.Background())
		return nil, nil, err
	}
	log.Info().Str("db", cfg.DBName).Msg("event journal enabled")
	return client, repo, nil
}

func newChannel(cfg *config.Config, logger zerolog.Logger, redisClient *redis.Client, onStatus channel.StatusFunc) (channel.Channel, error) {
	switch cfg.ChannelTransport {
	case config.TransportKafka:
		// a broker has no handshake; the consumer counts as connected once started
		onStatus(true)
		return kafka.NewEventConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, cfg.ChannelNamespace, logger), nil
	case config.TransportRedis:
		return redis.NewSubscriber(redisClient, cfg.ChannelNamespace, logger, onStatus), nil
	default:
		opts := []websocket.Option{
			websocket.WithLogger(logger),
			websocket.WithStatus(onStatus),
		}
		if cfg.ChannelTokenSecret != "" {
			clientID := "display-" + utils.NewUUID()
			token, err := middleware.GenerateAccessToken(cfg.ChannelTokenSecret, clientID, channelTokenTTL)
			if err != nil {
				return nil, fmt.Errorf("sign channel token: %w", err)
			}
			opts = append(opts, websocket.WithToken(token))
			logger.Info().Str("client_id", clientID).Msg("channel token issued")
		}
		return websocket.NewClient(cfg.ChannelURL, cfg.ChannelNamespace, opts...), nil
	}
}
