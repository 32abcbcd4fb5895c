// Package publisher relays terminal handshake events (success or error) back
// to the originating client over WebSocket. When the client's socket lives on
// another process, the event is relayed through a Redis pub/sub channel keyed
// by the websocket client id.
package publisher

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Ramsey-B/vine/pkg/metrics"
	vineredis "github.com/Ramsey-B/vine/pkg/redis"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

// ChannelPrefix namespaces the Redis relay channels
const ChannelPrefix = "publisher:"

// Message types delivered to websocket clients
const (
	MessageTypeConnectionAck = "connection_ack"
	MessageTypeSuccess       = "success"
	MessageTypeError         = "error"
)

// Message is the envelope sent to websocket clients
type Message struct {
	MessageType  string `json:"message_type"`
	WSClientID   string `json:"ws_client_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// wsClient pairs a socket with a write lock; gorilla connections allow only
// one concurrent writer
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Publisher delivers exactly one terminal event per handshake: locally over
// the client's websocket when it is connected to this process, otherwise
// through the Redis relay
type Publisher struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	subs    map[string]*struct{ cancel context.CancelFunc }

	redis  *vineredis.Client
	logger ectologger.Logger
}

// NewPublisher creates a publisher. The redis client may be nil, in which
// case cross-process relay is disabled (single-process deployments).
func NewPublisher(redisClient *vineredis.Client, logger ectologger.Logger) *Publisher {
	return &Publisher{
		clients: map[string]*wsClient{},
		subs:    map[string]*struct{ cancel context.CancelFunc }{},
		redis:   redisClient,
		logger:  logger,
	}
}

// Subscribe registers a websocket connection, acks it with its client id,
// and starts the Redis relay for events published by other processes.
// Returns the websocket client id.
func (p *Publisher) Subscribe(ctx context.Context, conn *websocket.Conn, wsClientID string) (string, error) {
	if wsClientID == "" {
		wsClientID = uuid.New().String()
	}

	client := &wsClient{conn: conn}

	p.mu.Lock()
	p.clients[wsClientID] = client
	p.mu.Unlock()

	metrics.WebSocketConnections.Inc()

	ack, _ := json.Marshal(Message{
		MessageType: MessageTypeConnectionAck,
		WSClientID:  wsClientID,
	})
	if err := client.send(ack); err != nil {
		p.Unsubscribe(wsClientID)
		return "", err
	}

	if p.redis != nil {
		p.relay(wsClientID)
	}

	return wsClientID, nil
}

// relay forwards messages published on this client's Redis channel to its
// local websocket. The subscription ends after the first delivery: each
// handshake gets exactly one terminal event.
func (p *Publisher) relay(wsClientID string) {
	ctx, cancel := context.WithCancel(context.Background())

	p.installSub(wsClientID, cancel)

	pubsub := p.redis.Subscribe(ctx, ChannelPrefix+wsClientID)

	go func() {
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if p.deliverLocal(wsClientID, []byte(msg.Payload)) {
					metrics.PublisherMessagesTotal.WithLabelValues("relay", "delivered").Inc()
				}
				p.Unsubscribe(wsClientID)
				return
			}
		}
	}()
}

// installSub registers the relay cancel for a client. A prior relay for the
// same client id is cancelled first: a reconnecting client must never hold
// two Redis subscriptions, or the terminal event could be delivered twice.
func (p *Publisher) installSub(wsClientID string, cancel context.CancelFunc) {
	p.mu.Lock()
	prior := p.subs[wsClientID]
	p.subs[wsClientID] = &struct{ cancel context.CancelFunc }{cancel: cancel}
	p.mu.Unlock()

	if prior != nil {
		prior.cancel()
	}
}

// Unsubscribe removes a client and stops its relay subscription. Safe to call
// more than once.
func (p *Publisher) Unsubscribe(wsClientID string) {
	p.mu.Lock()
	_, existed := p.clients[wsClientID]
	delete(p.clients, wsClientID)
	sub := p.subs[wsClientID]
	delete(p.subs, wsClientID)
	p.mu.Unlock()

	if existed {
		metrics.WebSocketConnections.Dec()
	}
	if sub != nil {
		sub.cancel()
	}
}

func (p *Publisher) deliverLocal(wsClientID string, payload []byte) bool {
	p.mu.RLock()
	client := p.clients[wsClientID]
	p.mu.RUnlock()

	if client == nil {
		return false
	}

	if err := client.send(payload); err != nil {
		p.logger.WithError(err).WithFields(map[string]any{
			"ws_client_id": wsClientID,
		}).Warn("failed to write to websocket client")
		return false
	}
	return true
}

// publish delivers to the local socket if present, otherwise relays through
// Redis. Reports whether local delivery happened.
func (p *Publisher) publish(ctx context.Context, wsClientID string, payload []byte) bool {
	if p.deliverLocal(wsClientID, payload) {
		return true
	}

	if p.redis != nil {
		if err := p.redis.Publish(ctx, ChannelPrefix+wsClientID, payload); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"ws_client_id": wsClientID,
			}).Error("failed to relay publisher message")
		}
	}
	return false
}

// PublishSuccess sends the terminal success event carrying the connection id.
// A locally delivered client is immediately unsubscribed.
func (p *Publisher) PublishSuccess(ctx context.Context, wsClientID string, connectionID uuid.UUID) {
	ctx, span := tracing.StartSpan(ctx, "Publisher.PublishSuccess")
	defer span.End()

	if wsClientID == "" {
		return
	}

	payload, _ := json.Marshal(Message{
		MessageType:  MessageTypeSuccess,
		ConnectionID: connectionID.String(),
	})

	if p.publish(ctx, wsClientID, payload) {
		p.Unsubscribe(wsClientID)
	}
	metrics.PublisherMessagesTotal.WithLabelValues(MessageTypeSuccess, "published").Inc()
}

// PublishError sends the terminal error event. The message is the sanitized
// client-facing text, never a raw provider error.
func (p *Publisher) PublishError(ctx context.Context, wsClientID string, errorMessage string) {
	ctx, span := tracing.StartSpan(ctx, "Publisher.PublishError")
	defer span.End()

	if wsClientID == "" {
		return
	}

	payload, _ := json.Marshal(Message{
		MessageType: MessageTypeError,
		Error:       errorMessage,
	})

	if p.publish(ctx, wsClientID, payload) {
		p.Unsubscribe(wsClientID)
	}
	metrics.PublisherMessagesTotal.WithLabelValues(MessageTypeError, "published").Inc()
}
