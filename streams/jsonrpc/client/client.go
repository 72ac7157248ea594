package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace is the namespace under which the release feed is registered.
	RpcNamespace                  = "rwa"
	ReleaseFeedSubscriptionMethod = "subscribeReleaseFeed"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     Logger
	BufferSize uint
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// FeedProcessor
// -----------------------------------------------------------------------------

// FeedProcessor handles the business logic of parsing feed messages, tracking
// nonce ordering, and broadcasting events. It is decoupled from the
// networking layer.
type FeedProcessor struct {
	lastNonce uint64
	seenFirst bool
	eventCh   chan *ReleaseEvent
	logger    Logger
}

// NewFeedProcessor creates a pure logic processor without networking.
func NewFeedProcessor(logger Logger, bufferSize uint) *FeedProcessor {
	return &FeedProcessor{
		logger:  logger,
		eventCh: make(chan *ReleaseEvent, bufferSize),
	}
}

// Events returns a read-only channel for receiving release events.
func (fp *FeedProcessor) Events() <-chan *ReleaseEvent {
	return fp.eventCh
}

// ProcessMessage accepts a raw JSON message (from WS or replayed from a file),
// decodes it, and broadcasts the event. Events whose nonce does not advance
// past the last seen one are replays or duplicates and are discarded.
func (fp *FeedProcessor) ProcessMessage(rawData json.RawMessage) error {
	processingStart := time.Now()
	var event SubscriptionEvent

	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}
	if event.Type == "" {
		return fmt.Errorf("subscription event missing type")
	}

	var release ReleaseEvent
	if err := json.Unmarshal(event.Payload, &release); err != nil {
		return fmt.Errorf("failed to unmarshal release event payload: %w", err)
	}
	release.Kind = event.Type
	release.SentAt = event.SentAt

	if fp.seenFirst && release.Nonce <= fp.lastNonce {
		fp.logger.Warn(
			"Received out-of-order release event. Discarding.",
			"last_nonce", fp.lastNonce,
			"event_nonce", release.Nonce,
			"kind", release.Kind,
		)
		return nil // Non-fatal, just ignored
	}
	fp.lastNonce = release.Nonce
	fp.seenFirst = true

	fp.logMetrics(&release, time.Since(processingStart), event.SentAt)

	fp.eventCh <- &release
	return nil
}

func (fp *FeedProcessor) logMetrics(event *ReleaseEvent, processingDur time.Duration, sentAt int64) {
	clientFinishTime := time.Now()
	clientStartTime := clientFinishTime.Add(-processingDur)
	serverFinishTime := time.Unix(0, sentAt)

	fp.logger.Debug("Release event processed",
		"kind", event.Kind,
		"component", event.Component,
		"version", event.Version,
		"nonce", event.Nonce,
		"latency_transport_ms", clientStartTime.Sub(serverFinishTime).Milliseconds(),
		"latency_proc_ms", processingDur.Milliseconds(),
	)
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client manages the connection and uses FeedProcessor for logic.
type Client struct {
	processor *FeedProcessor
	errCh     chan error
	logger    Logger
}

// NewClient creates a new client with networking enabled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewFeedProcessor(cfg.Logger, cfg.BufferSize),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// Events delegates to the processor's event channel.
func (c *Client) Events() <-chan *ReleaseEvent {
	return c.processor.Events()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			time.Sleep(reconnectDelay)
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.")
				return
			}
			c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			time.Sleep(reconnectDelay)
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, ReleaseFeedSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for release events...")
	for {
		select {
		case rawData := <-rawCh:
			// Delegate logic to the processor
			if err := c.processor.ProcessMessage(rawData); err != nil {
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}
