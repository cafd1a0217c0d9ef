// Package elevenlabs implements the realtime channel provider on top of
// the ElevenLabs conversational websocket protocol. The core depends
// only on the session.Channel event surface; everything protocol or
// transport specific stays here.
package elevenlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/WuVi5054/mentor-ai/pkg/session"
	"github.com/gorilla/websocket"
)

const eventBuffer = 32

// Provider opens websocket channels from signed URLs.
type Provider struct {
	dialer *websocket.Dialer
}

// NewProvider creates a websocket channel provider.
func NewProvider() *Provider {
	return &Provider{
		dialer: &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

// Open dials the signed URL and starts the event pump. The returned
// channel emits EventOpen first, then decoded protocol frames in
// arrival order.
func (p *Provider) Open(ctx context.Context, url string) (session.Channel, error) {
	conn, resp, err := p.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime channel: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial realtime channel: %w", err)
	}

	ch := &channel{
		conn:   conn,
		events: make(chan session.Event, eventBuffer),
	}
	ch.events <- session.Event{Kind: session.EventOpen}
	go ch.readLoop()
	return ch, nil
}

// frame is the subset of the conversational websocket protocol the
// session manager consumes. Unknown frame types are skipped.
type frame struct {
	Type string `json:"type"`

	UserTranscriptionEvent *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`

	AgentResponseEvent *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	PingEvent *struct {
		EventID int `json:"event_id"`
	} `json:"ping_event,omitempty"`
}

type pongFrame struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

type channel struct {
	conn   *websocket.Conn
	events chan session.Event

	mu      sync.Mutex
	closing bool
	once    sync.Once
}

// Events returns the ordered event queue.
func (c *channel) Events() <-chan session.Event {
	return c.events
}

// Close requests a graceful shutdown. Safe to call more than once and
// concurrently with the read loop.
func (c *channel) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()

		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

func (c *channel) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// readLoop decodes frames into tagged events until the connection
// drops. The protocol has no standalone mode frame: the agent is
// speaking while it responds and listening once a user transcript
// arrives, so mode changes are derived from the turn events.
func (c *channel) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosing() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.events <- session.Event{Kind: session.EventClose}
			} else {
				c.events <- session.Event{Kind: session.EventError, Err: err}
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue // tolerate unknown payloads
		}

		switch f.Type {
		case "ping":
			pong := pongFrame{Type: "pong"}
			if f.PingEvent != nil {
				pong.EventID = f.PingEvent.EventID
			}
			_ = c.conn.WriteJSON(pong)

		case "agent_response":
			if f.AgentResponseEvent == nil || f.AgentResponseEvent.AgentResponse == "" {
				continue
			}
			c.events <- session.Event{Kind: session.EventModeChange, Mode: session.ModeSpeaking}
			c.events <- session.Event{
				Kind:   session.EventMessage,
				Text:   f.AgentResponseEvent.AgentResponse,
				Source: session.SourceAgent,
			}

		case "user_transcript":
			if f.UserTranscriptionEvent == nil || f.UserTranscriptionEvent.UserTranscript == "" {
				continue
			}
			c.events <- session.Event{Kind: session.EventModeChange, Mode: session.ModeListening}
			c.events <- session.Event{
				Kind:   session.EventMessage,
				Text:   f.UserTranscriptionEvent.UserTranscript,
				Source: session.SourceUser,
			}

		case "interruption":
			c.events <- session.Event{Kind: session.EventModeChange, Mode: session.ModeListening}
		}
	}
}
