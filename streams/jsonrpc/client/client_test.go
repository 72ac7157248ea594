package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Setup: Mock RPC Server ---

type MockReleaseFeed struct {
	events chan *SubscriptionEvent
	t      *testing.T
}

func SetupMockReleaseFeed(ctx context.Context, t *testing.T, port int, events []*SubscriptionEvent) (<-chan error, error) {
	eventChan := make(chan *SubscriptionEvent, len(events))
	for _, e := range events {
		eventChan <- e
	}
	close(eventChan)

	api := &MockReleaseFeed{events: eventChan, t: t}
	server := rpc.NewServer()
	if err := server.RegisterName(RpcNamespace, api); err != nil {
		return nil, fmt.Errorf("failed to register API: %v", err)
	}

	wsHandler := server.WebsocketHandler([]string{"*"})
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: wsHandler}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	go func() {
		<-ctx.Done()
		server.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	return errChan, nil
}

func (api *MockReleaseFeed) SubscribeReleaseFeed(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	go func() {
		for event := range api.events {
			select {
			case <-rpcSub.Err():
				return
			default:
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					api.t.Logf("Error notifying subscriber: %v", err)
					return
				}
			}
		}
	}()
	return rpcSub, nil
}

// --- Test Helpers & Data Generation ---

func discardLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func publishedEvent(t *testing.T, component, version string, nonce uint64) *SubscriptionEvent {
	t.Helper()
	payload, err := json.Marshal(ReleaseEvent{
		Component:  component,
		Version:    version,
		BinaryHash: crypto.Keccak256Hash([]byte(component + version)),
		Nonce:      nonce,
	})
	require.NoError(t, err)
	return &SubscriptionEvent{Type: EventPublished, Payload: payload, SentAt: time.Now().UnixNano()}
}

func revokedEvent(t *testing.T, component, version, reason string, nonce uint64) *SubscriptionEvent {
	t.Helper()
	payload, err := json.Marshal(ReleaseEvent{
		Component:    component,
		Version:      version,
		RevokeReason: reason,
		Nonce:        nonce,
	})
	require.NoError(t, err)
	return &SubscriptionEvent{Type: EventRevoked, Payload: payload, SentAt: time.Now().UnixNano()}
}

// --- Tests ---

func TestClient_SuccessfulSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := []*SubscriptionEvent{publishedEvent(t, "edge-gateway", "1.4.2", 0)}
	_, err := SetupMockReleaseFeed(ctx, t, 9988, events)
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{
		URL:        "ws://localhost:9988",
		Logger:     discardLogger(),
		BufferSize: 10,
	})
	require.NoError(t, err)

	select {
	case event := <-client.Events():
		assert.Equal(t, EventPublished, event.Kind)
		assert.Equal(t, "edge-gateway", event.Component)
		assert.Equal(t, "1.4.2", event.Version)
		assert.Equal(t, uint64(0), event.Nonce)
	case <-time.After(2 * time.Second):
		t.Fatal("Test timed out waiting for release event")
	}
}

func TestClient_EventSequence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := []*SubscriptionEvent{
		publishedEvent(t, "edge-gateway", "1.0.0", 0),
		publishedEvent(t, "edge-gateway", "1.1.0", 1),
		revokedEvent(t, "edge-gateway", "1.0.0", "critical vulnerability", 2),
	}
	_, err := SetupMockReleaseFeed(ctx, t, 9987, events)
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{
		URL:        "ws://localhost:9987",
		Logger:     discardLogger(),
		BufferSize: 10,
	})
	require.NoError(t, err)

	expected := []struct {
		kind    EventKind
		version string
	}{
		{EventPublished, "1.0.0"},
		{EventPublished, "1.1.0"},
		{EventRevoked, "1.0.0"},
	}

	for i, want := range expected {
		select {
		case event := <-client.Events():
			assert.Equal(t, want.kind, event.Kind, "event %d", i)
			assert.Equal(t, want.version, event.Version, "event %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("Test timed out waiting for event %d", i)
		}
	}
}

func TestClient_Reconnection(t *testing.T) {
	const testPort = 9990
	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()

	client, err := NewClient(clientCtx, Config{
		URL:        fmt.Sprintf("ws://localhost:%d", testPort),
		Logger:     discardLogger(),
		BufferSize: 10,
	})
	require.NoError(t, err)

	server1Ctx, server1Cancel := context.WithCancel(clientCtx)
	_, err = SetupMockReleaseFeed(server1Ctx, t, testPort, []*SubscriptionEvent{publishedEvent(t, "edge-gateway", "1.0.0", 0)})
	require.NoError(t, err)

	select {
	case event := <-client.Events():
		assert.Equal(t, "1.0.0", event.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for first message")
	}

	server1Cancel()
	time.Sleep(100 * time.Millisecond)

	server2Ctx, server2Cancel := context.WithCancel(clientCtx)
	defer server2Cancel()
	_, err = SetupMockReleaseFeed(server2Ctx, t, testPort, []*SubscriptionEvent{publishedEvent(t, "edge-gateway", "1.1.0", 1)})
	require.NoError(t, err)

	select {
	case event := <-client.Events():
		assert.Equal(t, "1.1.0", event.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for client to reconnect")
	}
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
	}{
		{name: "Missing URL", cfg: Config{Logger: discardLogger(), BufferSize: 1}},
		{name: "Missing Logger", cfg: Config{URL: "ws://localhost:1", BufferSize: 1}},
		{name: "Zero BufferSize", cfg: Config{URL: "ws://localhost:1", Logger: discardLogger()}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(context.Background(), tc.cfg)
			assert.Error(t, err)
		})
	}
}

// --- FeedProcessor Tests ---

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestFeedProcessor_ProcessMessage(t *testing.T) {
	fp := NewFeedProcessor(discardLogger(), 10)

	raw := mustMarshal(t, publishedEvent(t, "edge-gateway", "1.0.0", 0))
	require.NoError(t, fp.ProcessMessage(raw))

	select {
	case event := <-fp.Events():
		assert.Equal(t, EventPublished, event.Kind)
		assert.Equal(t, crypto.Keccak256Hash([]byte("edge-gateway1.0.0")), event.BinaryHash)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

func TestFeedProcessor_ValidationErrors(t *testing.T) {
	fp := NewFeedProcessor(discardLogger(), 10)

	// Malformed JSON.
	err := fp.ProcessMessage([]byte(`{not-json}`))
	require.Error(t, err)

	// Missing event type.
	err = fp.ProcessMessage(mustMarshal(t, &SubscriptionEvent{Payload: []byte(`{}`)}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing type")
}

func TestFeedProcessor_OutOfOrderNonce(t *testing.T) {
	fp := NewFeedProcessor(discardLogger(), 10)

	require.NoError(t, fp.ProcessMessage(mustMarshal(t, publishedEvent(t, "edge-gateway", "1.0.0", 5))))
	<-fp.Events() // drain

	// A replayed event with an already-seen nonce is dropped, not an error.
	require.NoError(t, fp.ProcessMessage(mustMarshal(t, publishedEvent(t, "edge-gateway", "1.0.0", 5))))
	require.NoError(t, fp.ProcessMessage(mustMarshal(t, publishedEvent(t, "edge-gateway", "0.9.0", 3))))

	select {
	case <-fp.Events():
		t.Fatal("Should not emit events for replayed nonces")
	default:
	}

	// The sequence resumes with the next fresh nonce.
	require.NoError(t, fp.ProcessMessage(mustMarshal(t, publishedEvent(t, "edge-gateway", "1.1.0", 6))))
	select {
	case event := <-fp.Events():
		assert.Equal(t, "1.1.0", event.Version)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for fresh event")
	}
}

func TestFeedProcessor_NonceZeroAccepted(t *testing.T) {
	fp := NewFeedProcessor(discardLogger(), 10)

	// The very first event may carry nonce 0; only later duplicates of it
	// are replays.
	require.NoError(t, fp.ProcessMessage(mustMarshal(t, publishedEvent(t, "edge-gateway", "1.0.0", 0))))
	select {
	case event := <-fp.Events():
		assert.Equal(t, uint64(0), event.Nonce)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for nonce-zero event")
	}

	require.NoError(t, fp.ProcessMessage(mustMarshal(t, publishedEvent(t, "edge-gateway", "1.0.0", 0))))
	select {
	case <-fp.Events():
		t.Fatal("Duplicate nonce-zero event should be dropped")
	default:
	}
}
