package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// newTestServer runs a minimal live endpoint that acknowledges setup and
// then hands the connection to fn.
func newTestServer(t *testing.T, fn func(conn *websocket.Conn, setup Setup)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var msg clientSetupMessage
		if err := conn.ReadJSON(&msg); err != nil || msg.Setup == nil {
			t.Errorf("read setup: %v", err)
			return
		}
		if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			return
		}
		if fn != nil {
			fn(conn, *msg.Setup)
		}
	}))
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestDial_HandshakeAndEvents(t *testing.T) {
	ts := newTestServer(t, func(conn *websocket.Conn, setup Setup) {
		if setup.Model != "models/interviewer-live" {
			t.Errorf("setup model = %q", setup.Model)
		}
		_ = conn.WriteJSON(map[string]any{
			"serverContent": map[string]any{
				"outputTranscription": map[string]any{"text": "Hello"},
				"turnComplete":        true,
			},
		})
	})
	defer ts.Close()

	session, err := Dial(context.Background(), Config{
		Endpoint: wsURL(ts),
		APIKey:   "test-key",
		Model:    "models/interviewer-live",
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer session.Close()

	var got []string
	deadline := time.After(3 * time.Second)
	for len(got) < 3 {
		select {
		case event, ok := <-session.Events():
			if !ok {
				t.Fatalf("events channel closed early, got %v (err=%v)", got, session.Err())
			}
			got = append(got, event.eventType())
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %v", got)
		}
	}
	want := []string{"open", "output_text", "turn_complete"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestSession_SendMediaAndText(t *testing.T) {
	frames := make(chan []byte, 2)
	ts := newTestServer(t, func(conn *websocket.Conn, _ Setup) {
		for i := 0; i < 2; i++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- data
		}
	})
	defer ts.Close()

	session, err := Dial(context.Background(), Config{Endpoint: wsURL(ts), Model: "m"})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer session.Close()

	if err := session.SendMedia("audio/pcm;rate=16000", "AAAA"); err != nil {
		t.Fatalf("SendMedia() error = %v", err)
	}
	if err := session.SendText("please begin"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}

	var media clientMediaMessage
	if err := json.Unmarshal(waitFrame(t, frames), &media); err != nil || media.RealtimeInput == nil {
		t.Fatalf("media frame decode: %v (%+v)", err, media)
	}
	if len(media.RealtimeInput.MediaChunks) != 1 || media.RealtimeInput.MediaChunks[0].MIMEType != "audio/pcm;rate=16000" {
		t.Fatalf("unexpected media chunks: %+v", media.RealtimeInput.MediaChunks)
	}

	var text clientTextMessage
	if err := json.Unmarshal(waitFrame(t, frames), &text); err != nil || text.ClientContent == nil {
		t.Fatalf("text frame decode: %v (%+v)", err, text)
	}
	if !text.ClientContent.TurnComplete {
		t.Fatalf("text turn should be complete: %+v", text.ClientContent)
	}
	if got := text.ClientContent.Turns[0].Parts[0].Text; got != "please begin" {
		t.Fatalf("text = %q, want %q", got, "please begin")
	}
}

func TestSession_CloseIsIdempotentAndSendsFail(t *testing.T) {
	ts := newTestServer(t, func(conn *websocket.Conn, _ Setup) {
		// Hold the connection open until the client closes it.
		_, _, _ = conn.ReadMessage()
	})
	defer ts.Close()

	session, err := Dial(context.Background(), Config{Endpoint: wsURL(ts), Model: "m"})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := session.SendText("late"); err == nil {
		t.Fatalf("expected send on closed session to fail")
	}
}

func TestDial_RejectsMissingEndpointAndModel(t *testing.T) {
	if _, err := Dial(context.Background(), Config{Model: "m"}); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
	if _, err := Dial(context.Background(), Config{Endpoint: "ws://example.test"}); err == nil {
		t.Fatalf("expected error for missing model")
	}
}

func waitFrame(t *testing.T, frames <-chan []byte) []byte {
	t.Helper()
	select {
	case frame := <-frames:
		return frame
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for frame")
		return nil
	}
}
