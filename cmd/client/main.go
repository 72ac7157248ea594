package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rwaswap/rwaswap-core-go/cmd/client/config"
	"github.com/rwaswap/rwaswap-core-go/streams/jsonrpc/client"
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed, err := client.NewClient(
		ctx,
		client.Config{
			URL:        cfg.FeedURL,
			Logger:     rootLogger.With("component", "jsonrpc-client"),
			BufferSize: cfg.BufferSize,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "feed_url", cfg.FeedURL, "error", err)
		close()
	}

	for {
		select {
		case event := <-feed.Events():
			logEvent(rootLogger, event)
		case err := <-feed.Err():
			rootLogger.Error("Fatal client error", "error", err)
			return
		case <-ctx.Done():
			return
		}
	}
}

func logEvent(logger *slog.Logger, event *client.ReleaseEvent) {
	switch event.Kind {
	case client.EventRevoked:
		logger.Warn("Release revoked",
			"component", event.Component,
			"version", event.Version,
			"reason", event.RevokeReason,
			"nonce", event.Nonce,
		)
	case client.EventMinimumVersion:
		logger.Warn("Minimum version raised",
			"component", event.Component,
			"minimum_version", event.MinimumVersion,
			"nonce", event.Nonce,
		)
	default:
		logger.Info("Release published",
			"component", event.Component,
			"version", event.Version,
			"binary_hash", event.BinaryHash.Hex(),
			"nonce", event.Nonce,
		)
	}
}

func loadConfig() (*config.ClientConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
