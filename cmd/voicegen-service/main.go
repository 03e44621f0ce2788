// main package for the voicegen-service
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicegen/internal/config"
	"github.com/book-expert/voicegen/internal/credential"
	"github.com/book-expert/voicegen/internal/download"
	"github.com/book-expert/voicegen/internal/httpapi"
	"github.com/book-expert/voicegen/internal/murf"
	"github.com/book-expert/voicegen/internal/objectstore"
	"github.com/book-expert/voicegen/internal/session"
	"github.com/book-expert/voicegen/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
)

const (
	bootstrapLogFile = "voicegen-service-bootstrap.log"
	serviceLogFile   = "voicegen-service.log"
	natsClientName   = "voicegen-service"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func loadConfig(bootstrapLog *logger.Logger) (*config.Config, error) {
	if path := os.Getenv("VOICEGEN_CONFIG"); path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}

		return cfg, nil
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	err = godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		bootstrapLog.Warn("Failed to load .env file: %v", err)
	}

	// 2. Load configuration
	cfg, err := loadConfig(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return err
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	log, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return err
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Start the session; a missing key leaves it waiting for PUT /api/credential
	store := credential.NewStore(cfg.Credential.Path, log)
	sess := session.New(store, murf.Factory(cfg.Murf.BaseURL, cfg.Murf.Timeout()), log)

	err = sess.Start(ctx, os.Getenv(cfg.Credential.EnvVar))
	if err != nil {
		log.Warn("Session started without a catalog: %v", err)
	}

	// 5. Serve HTTP and, when configured, NATS jobs
	gin.SetMode(gin.ReleaseMode)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return httpapi.Serve(groupCtx, cfg.HTTP.Addr, httpapi.NewRouter(sess, log), log)
	})

	if cfg.NATS.URL != "" {
		natsWorker, closeNATS, err := setupWorker(groupCtx, cfg, sess, log)
		if err != nil {
			stop()
			_ = group.Wait()

			return err
		}
		defer closeNATS()

		group.Go(func() error {
			return natsWorker.Run(groupCtx)
		})
	} else {
		log.Info("nats.url is empty, synthesis worker disabled")
	}

	log.System("Voicegen service started (configured: %t)", sess.Configured())

	err = group.Wait()
	if err != nil {
		log.Error("Service stopped with error: %v", err)

		return err
	}

	log.System("Voicegen service stopped.")

	return nil
}

// setupWorker connects to NATS and binds the audio archive bucket.
func setupWorker(
	ctx context.Context,
	cfg *config.Config,
	sess *session.Session,
	log *logger.Logger,
) (*worker.NatsWorker, func(), error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(natsClientName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	js, err := jetstream.New(natsConnection)
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	audioStore, err := objectstore.New(ctx, js, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, nil, err
	}

	log.Info("Archiving audio in object store bucket: %s", audioStore.Bucket())

	natsWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.JobsSubject,
		sess,
		download.NewDownloader(cfg.Murf.DownloadTimeout(), log),
		audioStore,
		log,
	)

	return natsWorker, natsConnection.Close, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
