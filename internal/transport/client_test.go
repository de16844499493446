package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmaran/parley/internal/bus"
	"github.com/dmaran/parley/internal/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{}

// echoServer upgrades each connection and feeds it to handle.
func echoServer(t *testing.T, handle func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		handle(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientConnectAndReceive(t *testing.T) {
	srv := echoServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"new_message","data":{"id":"m1","conversationId":"c1","senderId":"u2","content":"hi","createdAt":1}}`))
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	b := bus.New()
	ch, unsub := b.Subscribe("transport.", 32)
	defer unsub()

	c := NewClient(wsURL(srv), "tok", b, zap.NewNop())
	c.Start(testContext(t))
	defer c.Stop()

	var gotConnected, gotMessage bool
	deadline := time.After(5 * time.Second)
	for !gotConnected || !gotMessage {
		select {
		case evt := <-ch:
			switch evt.Kind {
			case "transport.connected":
				gotConnected = true
			case "transport.new_message":
				m := evt.Payload.(model.Message)
				if m.ID != "m1" || m.Content != "hi" {
					t.Errorf("message = %+v", m)
				}
				gotMessage = true
			}
		case <-deadline:
			t.Fatalf("timeout: connected=%v message=%v", gotConnected, gotMessage)
		}
	}
}

func TestClientDropsInvalidEvents(t *testing.T) {
	srv := echoServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus","data":{}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"typing","data":{"room":"c1","user":"bob"}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	b := bus.New()
	ch, unsub := b.Subscribe("transport.typing", 8)
	defer unsub()

	c := NewClient(wsURL(srv), "", b, zap.NewNop())
	c.Start(testContext(t))
	defer c.Stop()

	// The bogus event is dropped; the valid one behind it still arrives.
	select {
	case evt := <-ch:
		if evt.Payload.(TypingSignal).User != "bob" {
			t.Errorf("payload = %+v", evt.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("valid event never delivered")
	}
}

func TestEmitWhileDisconnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/nope", "", bus.New(), zap.NewNop())
	if err := c.Join("c1"); !errors.Is(err, model.ErrTransportUnavailable) {
		t.Errorf("err = %v, want ErrTransportUnavailable", err)
	}
}

func TestClientEmitsIntent(t *testing.T) {
	received := make(chan []byte, 1)
	srv := echoServer(t, func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		if err == nil {
			received <- raw
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	b := bus.New()
	ch, unsub := b.Subscribe("transport.connected", 1)
	defer unsub()

	c := NewClient(wsURL(srv), "", b, zap.NewNop())
	c.Start(testContext(t))
	defer c.Stop()

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("never connected")
	}

	if err := c.Identify("u1", "alice"); err != nil {
		t.Fatal(err)
	}

	select {
	case raw := <-received:
		if !strings.Contains(string(raw), `"identify"`) || !strings.Contains(string(raw), `"alice"`) {
			t.Errorf("raw = %s", raw)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the intent")
	}
}

// testContext substitutes for t.Context, which needs Go 1.24+.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
