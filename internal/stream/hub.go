package stream

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix = "runs:"
	channelSuffix = ":live"
	clientBuffer  = 64
)

// Hub fans live run snapshots out to websocket clients watching a runner.
// With Redis configured every broadcast goes through the runs:{runner}:live
// channel, so clients connected to any instance receive it exactly once.
type Hub struct {
	redis   *redis.Client
	logger  *slog.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	pubsub    *redis.PubSub
	done      chan struct{}
	closeOnce sync.Once
}

type Client struct {
	RunnerID string
	Send     chan []byte
}

type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

func NewHub(redisClient *redis.Client, opts ...Option) *Hub {
	h := &Hub{
		redis:   redisClient,
		logger:  slog.Default(),
		clients: map[string]map[*Client]struct{}{},
	}
	for _, opt := range opts {
		opt(h)
	}

	if redisClient != nil {
		ctx := context.Background()
		pubsub := redisClient.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
		if _, err := pubsub.Receive(ctx); err != nil {
			h.logger.Warn("live fan-out limited to this instance", "error", err)
			_ = pubsub.Close()
			h.redis = nil
			return h
		}
		h.pubsub = pubsub
		h.done = make(chan struct{})
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(runnerID string) *Client {
	client := &Client{
		RunnerID: runnerID,
		Send:     make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[runnerID] == nil {
		h.clients[runnerID] = map[*Client]struct{}{}
	}
	h.clients[runnerID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	runnerClients, ok := h.clients[client.RunnerID]
	if !ok {
		return
	}
	if _, ok := runnerClients[client]; !ok {
		return
	}
	delete(runnerClients, client)
	if len(runnerClients) == 0 {
		delete(h.clients, client.RunnerID)
	}
	close(client.Send)
}

// Watchers reports how many clients follow a runner on this instance.
func (h *Hub) Watchers(runnerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[runnerID])
}

// Broadcast sends payload to every client watching runnerID. A failed Redis
// publish falls back to local delivery.
func (h *Hub) Broadcast(runnerID string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(runnerID), payload).Err()
		if err == nil {
			return
		}
		h.logger.Warn("redis publish failed, delivering locally", "runner", runnerID, "error", err)
	}
	h.deliver(runnerID, payload)
}

func (h *Hub) deliver(runnerID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[runnerID] {
		select {
		case client.Send <- payload:
		default:
			// slow client, drop
		}
	}
}

func (h *Hub) subscribeRedis() {
	defer close(h.done)

	for msg := range h.pubsub.Channel() {
		runnerID := runnerIDFromChannel(msg.Channel)
		if runnerID == "" {
			continue
		}
		h.deliver(runnerID, []byte(msg.Payload))
	}
}

// Close stops the Redis bridge and waits for it to exit.
func (h *Hub) Close() {
	if h.pubsub == nil {
		return
	}
	h.closeOnce.Do(func() {
		_ = h.pubsub.Close()
		<-h.done
	})
}

func redisChannel(runnerID string) string {
	return channelPrefix + runnerID + channelSuffix
}

func runnerIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
