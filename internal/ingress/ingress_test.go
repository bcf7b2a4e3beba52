package ingress

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, frames []string) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// keep the connection open past the client's cancellation so Run
		// ends on ctx, not on the server closing the socket
		time.Sleep(1 * time.Second)
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func TestDecodeValidFrame(t *testing.T) {
	msg, err := decode([]byte(`{"exchange":"A","symbol":"X","price":100.5,"timestamp":1000,"extra":"ignored"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Exchange != "A" || msg.Symbol != "X" || msg.Price != 100.5 || msg.TsMs != 1000 {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestDecodeMissingField(t *testing.T) {
	if _, err := decode([]byte(`{"exchange":"A","symbol":"X","price":100.5}`)); err == nil {
		t.Fatal("expected DecodeError for missing timestamp")
	} else if _, ok := err.(*DecodeError); !ok {
		t.Errorf("expected *DecodeError, got %T", err)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	if _, err := decode([]byte(`not json`)); err == nil {
		t.Fatal("expected DecodeError for malformed JSON")
	}
}

func TestRunDeliversDecodedMessagesAndSkipsBad(t *testing.T) {
	frames := []string{
		`{"exchange":"A","symbol":"X","price":100.0,"timestamp":1000}`,
		`not json`,
		`{"exchange":"B","symbol":"X","price":101.0,"timestamp":1001}`,
	}
	srv, wsURL := newTestServer(t, frames)
	defer srv.Close()

	client := New(wsURL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	var received []Message
	var decodeErrs int

	runCtx, runCancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(300 * time.Millisecond)
		runCancel()
	}()

	err := client.Run(runCtx, func(m Message) {
		received = append(received, m)
	}, func(error) {
		decodeErrs++
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if len(received) != 2 {
		t.Fatalf("received %d messages, want 2: %+v", len(received), received)
	}
	if decodeErrs != 1 {
		t.Errorf("decodeErrs = %d, want 1", decodeErrs)
	}
	if client.Stats().MessagesReceived != 3 {
		t.Errorf("MessagesReceived = %d, want 3 (decode errors still count as received frames)", client.Stats().MessagesReceived)
	}
}

func TestConnectFatalOnBadEndpoint(t *testing.T) {
	client := New("ws://127.0.0.1:1")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := client.Connect(ctx)
	if err == nil {
		t.Fatal("expected connect error")
	}
	var fatal *TransportFatal
	if !errors.As(err, &fatal) {
		t.Errorf("expected *TransportFatal, got %T", err)
	}
}
