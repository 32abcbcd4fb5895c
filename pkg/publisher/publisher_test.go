package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
}

// newSocketPair upgrades a websocket over an httptest server and returns the
// server-side connection (what Subscribe receives) and the client side.
func newSocketPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	select {
	case conn := <-serverSide:
		t.Cleanup(func() { conn.Close() })
		return conn, clientConn
	case <-time.After(2 * time.Second):
		t.Fatal("websocket upgrade did not complete")
		return nil, nil
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func TestSubscribe_AcksClient(t *testing.T) {
	p := NewPublisher(nil, testLogger())
	serverConn, clientConn := newSocketPair(t)

	wsClientID, err := p.Subscribe(context.Background(), serverConn, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "client-1", wsClientID)

	ack := readMessage(t, clientConn)
	assert.Equal(t, MessageTypeConnectionAck, ack.MessageType)
	assert.Equal(t, "client-1", ack.WSClientID)
}

func TestSubscribe_GeneratesClientID(t *testing.T) {
	p := NewPublisher(nil, testLogger())
	serverConn, clientConn := newSocketPair(t)

	wsClientID, err := p.Subscribe(context.Background(), serverConn, "")
	require.NoError(t, err)
	require.NotEmpty(t, wsClientID)
	_, err = uuid.Parse(wsClientID)
	require.NoError(t, err)

	ack := readMessage(t, clientConn)
	assert.Equal(t, wsClientID, ack.WSClientID)
}

func TestPublishSuccess_DeliversOnceAndUnsubscribes(t *testing.T) {
	p := NewPublisher(nil, testLogger())
	serverConn, clientConn := newSocketPair(t)

	_, err := p.Subscribe(context.Background(), serverConn, "client-1")
	require.NoError(t, err)
	readMessage(t, clientConn) // ack

	connectionID := uuid.New()
	p.PublishSuccess(context.Background(), "client-1", connectionID)

	msg := readMessage(t, clientConn)
	assert.Equal(t, MessageTypeSuccess, msg.MessageType)
	assert.Equal(t, connectionID.String(), msg.ConnectionID)

	// The terminal event ends the subscription.
	p.mu.RLock()
	_, stillSubscribed := p.clients["client-1"]
	p.mu.RUnlock()
	assert.False(t, stillSubscribed)
}

func TestPublishError_SendsSanitizedMessage(t *testing.T) {
	p := NewPublisher(nil, testLogger())
	serverConn, clientConn := newSocketPair(t)

	_, err := p.Subscribe(context.Background(), serverConn, "client-1")
	require.NoError(t, err)
	readMessage(t, clientConn) // ack

	p.PublishError(context.Background(), "client-1", "Authorization was cancelled.")

	msg := readMessage(t, clientConn)
	assert.Equal(t, MessageTypeError, msg.MessageType)
	assert.Equal(t, "Authorization was cancelled.", msg.Error)
}

func TestPublish_EmptyClientIDIsNoOp(t *testing.T) {
	p := NewPublisher(nil, testLogger())

	p.PublishSuccess(context.Background(), "", uuid.New())
	p.PublishError(context.Background(), "", "nope")

	p.mu.RLock()
	defer p.mu.RUnlock()
	assert.Empty(t, p.clients)
	assert.Empty(t, p.subs)
}

func TestInstallSub_ResubscribeCancelsPriorRelay(t *testing.T) {
	p := NewPublisher(nil, testLogger())

	firstCtx, firstCancel := context.WithCancel(context.Background())
	p.installSub("client-1", firstCancel)

	secondCtx, secondCancel := context.WithCancel(context.Background())
	defer secondCancel()
	p.installSub("client-1", secondCancel)

	select {
	case <-firstCtx.Done():
	default:
		t.Fatal("prior relay subscription was not cancelled on re-subscribe")
	}
	select {
	case <-secondCtx.Done():
		t.Fatal("replacement relay subscription must stay live")
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	assert.Len(t, p.subs, 1)
}

func TestUnsubscribe_CancelsRelayAndIsIdempotent(t *testing.T) {
	p := NewPublisher(nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	p.installSub("client-1", cancel)

	p.Unsubscribe("client-1")
	select {
	case <-ctx.Done():
	default:
		t.Fatal("relay subscription was not cancelled on unsubscribe")
	}

	p.Unsubscribe("client-1")

	p.mu.RLock()
	defer p.mu.RUnlock()
	assert.Empty(t, p.subs)
}
