package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	httpServer "github.com/adwski/drawing-board/backend/server/http"
	websocketServer "github.com/adwski/drawing-board/backend/server/websocket"
	"github.com/adwski/drawing-board/backend/service"
	store "github.com/adwski/drawing-board/backend/storage/memory"
	"github.com/adwski/drawing-board/backend/storage/sqlite"
	sw "github.com/adwski/drawing-board/backend/switch"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("no .env file found, using environment variables")
	}

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)
	var (
		port     = fs.StringP("port", "p", envOr("PORT", "8080"), "listen port")
		dbPath   = fs.StringP("db", "d", envOr("DB_PATH", "drawing-board.db"), "sqlite database path")
		logLevel = fs.StringP("log-level", "l", envOr("LOG_LEVEL", "info"), "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := sqlite.New(ctx, sqlite.Config{Logger: &logger, Path: *dbPath})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() {
		if errC := db.Close(); errC != nil {
			logger.Error().Err(errC).Msg("failed to close database")
		}
	}()

	records, err := db.LoadSnapshot(ctx)
	if err != nil {
		// start with an empty registry rather than refusing to serve
		logger.Error().Err(err).Msg("failed to load rooms snapshot")
	}
	registry := store.NewMemStore(store.Config{Logger: &logger})
	registry.Load(records)

	svc := service.NewService(service.Config{
		RoomRegistry: registry,
		Switch:       sw.NewSwitch(&logger),
		Persister:    db,
		Logger:       &logger,
	})
	wsHandler := websocketServer.NewHandler(websocketServer.Config{
		Logger:  &logger,
		Gateway: svc,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: svc,
		WebSocket:   wsHandler,
		ListenAddr:  net.JoinHostPort("", *port),
	})

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 1)
	)
	wg.Add(1)
	go httpSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
	wsHandler.Close()
	// flush pending snapshot writes before the database is closed
	svc.Close()
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
