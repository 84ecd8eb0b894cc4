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

	"chat-presence/auth"
	"chat-presence/gateway"
	"chat-presence/moderation"
	"chat-presence/observability"
	"chat-presence/projection"
	"chat-presence/repositories"
	"chat-presence/runtime"
	"chat-presence/runtime/workers"
	"chat-presence/services"
	"chat-presence/sink"
	"chat-presence/storage"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the gateway and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Full-text index (Bluge)
	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = indexWriter.Close()
	}()

	// 4. Moderation dictionary
	censored, err := moderation.LoadCensoredWords()
	if err != nil {
		return fmt.Errorf("moderation dictionary failed: %w", err)
	}
	moderator, err := moderation.NewModerator(censored.Words, config.ModerationCharReplacement, log)
	if err != nil {
		return fmt.Errorf("moderation automaton failed: %w", err)
	}

	// 5. Core wiring
	registry := runtime.NewRegistry(log)
	messageLog := repositories.NewMessageLog(db, log, config.LimitMessages)
	messageIndex := repositories.NewMessageIndex(indexWriter, log)
	blobs, err := storage.NewDiskStore(config.UploadsDir, config.PublicURL, log)
	if err != nil {
		return fmt.Errorf("uploads directory failed: %w", err)
	}

	router := runtime.NewRouter(log, registry, messageLog, config.SinkTimeout)
	activity := projection.NewRoomActivity()
	metrics := observability.NewMetrics()
	router.Add(sink.NewIndexSink(messageIndex, log), activity, metrics)
	typing := runtime.NewTypingTracker(config.TypingTTL)
	presence := runtime.NewPresence(log, registry, router, typing)
	service := services.NewChatService(log, registry, router, typing,
		&moderator, messageLog, messageIndex, blobs)
	verifier := auth.NewVerifier(config.JWTSecret)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Background workers under supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewRetentionWorker(log, messageLog, config.RetentionMaxAge, config.RetentionInterval),
		workers.NewTypingSweeper(log, typing, router, config.TypingSweepInterval),
		workers.NewHealthMonitoringWorker(log, config.HealthInterval),
	)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 8. HTTP & Websocket gateway
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	server := gateway.NewServer(log, verifier, registry, presence, router, service, activity, metrics)
	server.Routes(engine, config.UploadsDir)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: engine}

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting gateway", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	// 9. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 10. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	server.CloseAll()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("gateway did not stop cleanly", "error", err)
	}
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}
