package elevenlabs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/WuVi5054/mentor-ai/pkg/session"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// wsServer runs the given script against each websocket client.
func wsServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()
		script(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collect(t *testing.T, ch session.Channel, n int) []session.Event {
	t.Helper()
	var events []session.Event
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events: %v", len(events), events)
		}
	}
	return events
}

func TestOpenEmitsOpenEvent(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})
	defer srv.Close()

	ch, err := NewProvider().Open(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = ch.Close() }()

	events := collect(t, ch, 2)
	if events[0].Kind != session.EventOpen {
		t.Errorf("first event = %v, want EventOpen", events[0].Kind)
	}
	if events[1].Kind != session.EventClose {
		t.Errorf("second event = %v, want EventClose", events[1].Kind)
	}
}

func TestMessageFramesBecomeEvents(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{
			"type":                 "agent_response",
			"agent_response_event": map[string]any{"agent_response": "Hi"},
		})
		_ = conn.WriteJSON(map[string]any{
			"type":                     "user_transcript",
			"user_transcription_event": map[string]any{"user_transcript": "Hello"},
		})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})
	defer srv.Close()

	ch, err := NewProvider().Open(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = ch.Close() }()

	events := collect(t, ch, 5)

	want := []struct {
		kind   session.EventKind
		mode   session.Mode
		text   string
		source session.Source
	}{
		{kind: session.EventOpen},
		{kind: session.EventModeChange, mode: session.ModeSpeaking},
		{kind: session.EventMessage, text: "Hi", source: session.SourceAgent},
		{kind: session.EventModeChange, mode: session.ModeListening},
		{kind: session.EventMessage, text: "Hello", source: session.SourceUser},
	}
	for i, w := range want {
		ev := events[i]
		if ev.Kind != w.kind || ev.Mode != w.mode || ev.Text != w.text || ev.Source != w.source {
			t.Errorf("events[%d] = %+v, want %+v", i, ev, w)
		}
	}
}

func TestPingGetsPong(t *testing.T) {
	got := make(chan string, 1)
	srv := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{
			"type":       "ping",
			"ping_event": map[string]any{"event_id": 7},
		})
		var reply struct {
			Type    string `json:"type"`
			EventID int    `json:"event_id"`
		}
		if err := conn.ReadJSON(&reply); err == nil && reply.EventID == 7 {
			got <- reply.Type
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})
	defer srv.Close()

	ch, err := NewProvider().Open(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = ch.Close() }()

	select {
	case typ := <-got:
		if typ != "pong" {
			t.Errorf("reply type = %q, want pong", typ)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestOpenDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no websocket here", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewProvider().Open(context.Background(), wsURL(srv)); err == nil {
		t.Error("Open() should fail against a non-websocket endpoint")
	}
}
