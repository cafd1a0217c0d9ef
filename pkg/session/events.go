package session

import "context"

// EventKind tags a realtime channel event.
type EventKind string

const (
	// EventOpen fires when the channel is established.
	EventOpen EventKind = "open"
	// EventClose fires when the remote side closes the channel.
	EventClose EventKind = "close"
	// EventError fires on an unrecoverable channel error.
	EventError EventKind = "error"
	// EventModeChange fires when the agent toggles speaking/listening.
	EventModeChange EventKind = "mode_change"
	// EventMessage fires for each transcribed turn.
	EventMessage EventKind = "message"
)

// Mode is the agent's conversational mode.
type Mode string

const (
	ModeSpeaking  Mode = "speaking"
	ModeListening Mode = "listening"
)

// Source identifies who produced a message event.
type Source string

const (
	SourceAgent Source = "agent"
	SourceUser  Source = "user"
)

// Event is a tagged channel event. Each session's channel delivers its
// events through one ordered queue, which makes cross-session
// interleaving explicit and replayable in tests.
type Event struct {
	Kind EventKind
	// Mode is set for EventModeChange.
	Mode Mode
	// Text and Source are set for EventMessage.
	Text   string
	Source Source
	// Err is set for EventError.
	Err error
}

// Channel is the opaque handle to one realtime voice channel. It is
// owned exclusively by its Session and never shared.
type Channel interface {
	// Events returns the ordered event queue. The channel closes it when
	// no further events will be delivered.
	Events() <-chan Event

	// Close requests a graceful shutdown of the channel.
	Close() error
}

// ChannelProvider opens realtime channels from signed URLs. The core
// depends only on this surface, not on transport details.
type ChannelProvider interface {
	Open(ctx context.Context, url string) (Channel, error)
}
