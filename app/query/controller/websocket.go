package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	carbonredis "github.com/meridian-network/carbonx/pkg/redis"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: In production, restrict to specific origins
		return true
	},
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action  string `json:"action"`  // "subscribe" or "unsubscribe"
	Dataset string `json:"dataset"` // Dataset to subscribe to, or "*" for all datasets
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"`    // "dataset.updated", "subscribed", "unsubscribed", "error", "info"
	Payload interface{} `json:"payload"` // Event-specific data
}

// clientSubscriptions tracks what datasets a client is subscribed to.
type clientSubscriptions struct {
	mu       sync.RWMutex
	datasets map[string]bool
}

// NewClientSubscriptions creates a new clientSubscriptions tracker.
// Exported for testing.
func NewClientSubscriptions() *clientSubscriptions {
	return &clientSubscriptions{
		datasets: make(map[string]bool),
	}
}

// Subscribe adds a dataset to the subscription list.
// Exported for testing.
func (cs *clientSubscriptions) Subscribe(dataset string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.datasets[dataset] = true
}

// Unsubscribe removes a dataset from the subscription list.
// Exported for testing.
func (cs *clientSubscriptions) Unsubscribe(dataset string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.datasets, dataset)
}

// IsSubscribed checks if a dataset is subscribed. Wildcard (*) matches all.
// Exported for testing.
func (cs *clientSubscriptions) IsSubscribed(dataset string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if cs.datasets["*"] {
		return true
	}
	return cs.datasets[dataset]
}

// HandleWebSocket upgrades HTTP connection to WebSocket and streams real-time events.
//
// Protocol:
// Client sends: {"action": "subscribe", "dataset": "nodes"}  // Subscribe to one dataset
// Client sends: {"action": "subscribe", "dataset": "*"}      // Subscribe to ALL datasets
// Client sends: {"action": "unsubscribe", "dataset": "nodes"}
//
// Server sends:
// - {"type": "dataset.updated", "payload": {...}}
// - {"type": "subscribed", "payload": {"dataset": "nodes"}}
// - {"type": "unsubscribed", "payload": {"dataset": "nodes"}}
// - {"type": "error", "payload": {"message": "..."}}
//
// IMPORTANT: All goroutines have panic recovery to prevent crashes.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Check if Redis is available
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.App.Logger.Error("Failed to close WebSocket connection", zap.Error(err))
		}
	}(conn)

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	// Create cancellable context for this connection
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Track client subscriptions
	subs := NewClientSubscriptions()

	// Channel for outgoing messages
	send := make(chan ServerMessage, 256)

	// Wait group to coordinate goroutines
	var wg sync.WaitGroup

	spawn := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					c.App.Logger.Error("Panic in WebSocket goroutine",
						zap.String("goroutine", name),
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("remote_addr", r.RemoteAddr))
					// Signal shutdown on panic
					cancel()
				}
			}()
			fn()
		}()
	}

	spawn("redis-subscriber", func() { c.subscribeToRedis(ctx, send, subs) })
	spawn("ping-ticker", func() { c.sendPings(ctx, conn) })
	spawn("message-writer", func() { c.writeMessages(conn, send) })

	// Read messages from client (for subscriptions and close detection)
	// This blocks until the connection closes
	c.readClientMessages(ctx, conn, cancel, subs, send)

	// Connection closed - cleanup
	close(send)
	wg.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// subscribeToRedis subscribes to the dataset-updated channel and forwards
// matching events to the send channel, filtering server-side by client
// subscriptions.
//
// This function implements automatic reconnection with exponential backoff:
// - If Redis connection is lost, it will retry with increasing delays
// - Clients are notified when Redis is unavailable
// - Automatically restores subscription when Redis recovers
// - Respects context cancellation for clean shutdown
func (c *Controller) subscribeToRedis(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions) {
	// Retry configuration
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1 // 10% jitter
	)

	backoff := initialBackoff
	attemptNum := 0

	for {
		// Check if context is cancelled before attempting connection
		select {
		case <-ctx.Done():
			c.App.Logger.Info("Redis subscription cancelled")
			return
		default:
		}

		attemptNum++

		subscriptionErr := c.attemptRedisSubscription(ctx, send, subs, attemptNum)

		// If context was cancelled, exit cleanly
		if ctx.Err() != nil {
			c.App.Logger.Info("Redis subscription cancelled")
			return
		}

		if subscriptionErr != nil {
			c.App.Logger.Warn("Redis subscription failed, will retry",
				zap.Error(subscriptionErr),
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		} else {
			c.App.Logger.Warn("Redis subscription channel closed, will retry",
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		}

		// Notify client that Redis is unavailable
		select {
		case send <- ServerMessage{
			Type: "error",
			Payload: map[string]interface{}{
				"message":     "Redis connection lost, attempting to reconnect...",
				"retryIn":     backoff.Seconds(),
				"attempt":     attemptNum,
				"recoverable": true,
			},
		}:
		case <-ctx.Done():
			return
		}

		// Wait before retrying (with context cancellation check)
		select {
		case <-time.After(backoff):
			// Continue to retry
		case <-ctx.Done():
			c.App.Logger.Info("Redis subscription cancelled during backoff")
			return
		}

		backoff = CalculateNextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

// attemptRedisSubscription attempts a single Redis subscription and processes
// messages until the subscription fails or context is cancelled.
func (c *Controller) attemptRedisSubscription(
	ctx context.Context,
	send chan<- ServerMessage,
	subs *clientSubscriptions,
	attemptNum int,
) error {
	c.App.Logger.Info("Attempting Redis subscription",
		zap.String("channel", carbonredis.ChannelDatasetUpdated),
		zap.Int("attempt", attemptNum))

	pubsub := c.App.RedisClient.Subscribe(ctx, carbonredis.ChannelDatasetUpdated)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Error("Error closing Redis subscription", zap.Error(err))
		}
	}()

	// Wait for confirmation of subscription with timeout
	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()

	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("failed to confirm Redis subscription: %w", err)
	}

	c.App.Logger.Info("Successfully subscribed to Redis channel",
		zap.String("channel", carbonredis.ChannelDatasetUpdated),
		zap.Int("attempt", attemptNum))

	// Notify client that Redis connection is restored
	select {
	case send <- ServerMessage{
		Type: "info",
		Payload: map[string]interface{}{
			"message": "Redis connection established",
			"attempt": attemptNum,
		},
	}:
	case <-ctx.Done():
		return ctx.Err()
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				// Channel closed - this is the normal Redis disconnection case
				return nil
			}

			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				c.App.Logger.Error("Failed to parse Redis message",
					zap.Error(err),
					zap.String("channel", msg.Channel))
				continue
			}

			dataset, _ := payload["dataset"].(string)
			if dataset == "" {
				c.App.Logger.Warn("Dataset-updated event without dataset name")
				continue
			}

			// Server-side filtering: only forward if client is subscribed
			if !subs.IsSubscribed(dataset) {
				continue
			}

			select {
			case send <- ServerMessage{Type: "dataset.updated", Payload: payload}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// CalculateNextBackoff calculates the next backoff duration with exponential growth and jitter.
// Exported for testing.
func CalculateNextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	// Calculate exponential increase
	next := time.Duration(float64(current) * factor)

	// Cap at maximum
	if next > max {
		next = max
	}

	// Add jitter: random value between -jitterFactor and +jitterFactor
	// This prevents all clients from retrying at exactly the same time
	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	nextWithJitter := time.Duration(float64(next) + jitter)

	// Ensure we never go below initial or above max
	if nextWithJitter < current {
		nextWithJitter = current
	}
	if nextWithJitter > max {
		nextWithJitter = max
	}

	return nextWithJitter
}

// sendPings sends periodic WebSocket ping frames to keep the connection alive.
// The client will automatically respond with pong frames, which resets the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Error("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages writes messages from the send channel to the WebSocket connection.
func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Error("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

// readClientMessages reads messages from the WebSocket connection.
// Handles subscription/unsubscription requests and detects connection closure.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *clientSubscriptions, send chan<- ServerMessage) {
	// Set a read deadline for detecting dead connections
	if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}

	// Set pong handler to reset read deadline
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.App.Logger.Error("Failed to reset read deadline", zap.Error(err))
			return err
		}
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.App.Logger.Error("WebSocket read error", zap.Error(err))
				}
				cancel() // Signal shutdown
				return
			}

			// Reset read deadline after successful read
			if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
				c.App.Logger.Error("Failed to reset read deadline", zap.Error(err))
				return
			}

			switch msg.Action {
			case "subscribe":
				if msg.Dataset == "" {
					send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "dataset is required"}}
					continue
				}
				subs.Subscribe(msg.Dataset)
				c.App.Logger.Debug("Client subscribed", zap.String("dataset", msg.Dataset))
				send <- ServerMessage{Type: "subscribed", Payload: map[string]string{"dataset": msg.Dataset}}

			case "unsubscribe":
				if msg.Dataset == "" {
					send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "dataset is required"}}
					continue
				}
				subs.Unsubscribe(msg.Dataset)
				c.App.Logger.Debug("Client unsubscribed", zap.String("dataset", msg.Dataset))
				send <- ServerMessage{Type: "unsubscribed", Payload: map[string]string{"dataset": msg.Dataset}}

			default:
				send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}}
			}
		}
	}
}
