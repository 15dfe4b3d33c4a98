package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"agrimandi-auction-service/internal/adapters/auth"
	"agrimandi-auction-service/internal/adapters/broadcaster"
	"agrimandi-auction-service/internal/adapters/db"
	"agrimandi-auction-service/internal/adapters/httpapi"
	"agrimandi-auction-service/internal/adapters/memory"
	"agrimandi-auction-service/internal/adapters/redis"
	"agrimandi-auction-service/internal/adapters/ws"
	"agrimandi-auction-service/internal/app"
	"agrimandi-auction-service/internal/config"
	"agrimandi-auction-service/internal/ports/outbound"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	initLogging(cfg)

	log.Info().Msg("Starting AgriMandi Auction Service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auctionRepo, userRepo, cleanup := buildRepositories(cfg)
	defer cleanup()

	eventBroadcaster := buildBroadcaster(cfg)
	defer eventBroadcaster.Close()

	var identity outbound.IdentityProvider = auth.NewIntrospectionClient(auth.IntrospectionClientParams{
		BaseURL: cfg.Auth.URL,
		Logger:  log.Logger,
	})
	if userRepo != nil {
		identity = auth.NewProjectingIdentity(auth.ProjectingIdentityParams{
			Inner:    identity,
			UserRepo: userRepo,
			Logger:   log.Logger,
		})
	}

	auctionService := app.NewAuctionService(app.AuctionServiceParams{
		AuctionRepo: auctionRepo,
		Logger:      log.Logger,
	})
	bidService := app.NewBidService(app.BidServiceParams{
		AuctionRepo: auctionRepo,
		MaxRetries:  cfg.Bidding.AdmissionRetries,
		Logger:      log.Logger,
	})

	log.Info().Msg("Business services initialized")

	wsHandler := ws.NewHandler(ws.WsHandlerParams{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		},
		BidService:  bidService,
		Identity:    identity,
		Broadcaster: eventBroadcaster,
		Logger:      log.Logger,
	})

	router := httpapi.SetupRouter(httpapi.RouterParams{
		AuctionService: auctionService,
		Identity:       identity,
		WsHandler:      wsHandler.HandleWebSocket,
		Logger:         log.Logger,
	})

	server := httpapi.NewServer(httpapi.ServerParams{
		Config: cfg,
		Router: router,
		Logger: log.Logger,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start server")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping server")
	}

	log.Info().Msg("Graceful shutdown completed")
}

// buildRepositories selects the store backend. The in-memory store is
// for single-node development only and carries no user projection;
// postgres is the durable default.
func buildRepositories(cfg *config.Config) (outbound.AuctionRepository, outbound.UserRepository, func()) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn().Msg("Using in-memory auction store; auctions will not survive a restart")
		return memory.NewAuctionRepository(), nil, func() {}
	}

	dbConn, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Database connection established")

	repoFactory := db.NewRepositoryFactory(dbConn)
	return repoFactory.GetAuctionRepository(), repoFactory.GetUserRepository(), func() { dbConn.Close() }
}

// buildBroadcaster selects the fan-out backend
func buildBroadcaster(cfg *config.Config) outbound.Broadcaster {
	if cfg.Broadcast.Driver == config.DriverMemory {
		return broadcaster.NewMemoryBroadcaster(broadcaster.MemoryBroadcasterParams{
			Logger: log.Logger,
		})
	}

	redisClient := redis.NewClient(cfg)
	if err := redis.PingRedis(redisClient); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	log.Info().Msg("Redis connection established")

	return broadcaster.NewRedisBroadcaster(broadcaster.RedisBroadcasterParams{
		RedisClient: redisClient,
		Logger:      log.Logger,
	})
}

func initLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Logging.File != "" {
		output = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}

	if cfg.Logging.Format == "json" {
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		console := zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
	}

	zerolog.DefaultContextLogger = &log.Logger
}
