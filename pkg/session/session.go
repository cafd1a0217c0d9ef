// Package session owns the lifecycle of per-agent realtime voice
// sessions and the registry that enforces at most one active session
// per agent identity.
package session

import (
	"context"
	"sync"

	"github.com/WuVi5054/mentor-ai/pkg/catalog"
)

// State is a session lifecycle state.
type State int

const (
	// Idle is the initial state before connection is attempted.
	Idle State = iota
	// Connecting means a signed URL fetch or channel dial is in flight.
	Connecting
	// Connected means the channel is open.
	Connected
	// Speaking means the agent is currently speaking.
	Speaking
	// Listening means the agent is listening to the user.
	Listening
	// Ended is terminal: the session was stopped or remotely closed.
	Ended
	// Failed is terminal: the channel reported an unrecoverable error.
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Speaking:
		return "speaking"
	case Listening:
		return "listening"
	case Ended:
		return "ended"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is Ended or Failed.
func (s State) Terminal() bool {
	return s == Ended || s == Failed
}

// Session is one realtime voice channel bound to a single agent
// identity. Sessions are created by the Registry and owned by it under
// the agent id key.
type Session struct {
	agent catalog.Agent

	mu     sync.Mutex
	state  State
	ch     Channel // connection handle, owned exclusively by this session
	err    error
	cancel context.CancelFunc
	done   chan struct{} // closed on first transition to a terminal state
}

func newSession(agent catalog.Agent, cancel context.CancelFunc) *Session {
	return &Session{
		agent:  agent,
		state:  Connecting,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Agent returns the agent identity this session is bound to.
func (s *Session) Agent() catalog.Agent {
	return s.agent
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done returns a channel closed when the session reaches a terminal
// state. After Done, Err reports why a Failed session failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the failure cause for a Failed session, nil otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// attach hands the opened channel to the session. It refuses when the
// session already reached a terminal state, so a connection resolving
// after Stop is discarded by the caller.
func (s *Session) attach(ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.ch = ch
	return true
}

// setConnected moves Connecting to Connected.
func (s *Session) setConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Connecting {
		s.state = Connected
	}
}

// setMode toggles Speaking/Listening. Mode toggles freely between the
// connected states and is ignored elsewhere.
func (s *Session) setMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Connected, Speaking, Listening:
		if mode == ModeSpeaking {
			s.state = Speaking
		} else {
			s.state = Listening
		}
	}
}

// end transitions to Ended. Returns true only on the first transition
// to a terminal state, so stop and remote close cannot both claim it.
func (s *Session) end() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = Ended
	close(s.done)
	return true
}

// fail transitions to Failed with the given cause. Returns true only on
// the first terminal transition.
func (s *Session) fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = Failed
	s.err = err
	close(s.done)
	return true
}

// cancelPending cancels a start that is still suspended on the signed
// URL fetch or channel dial.
func (s *Session) cancelPending() {
	if s.cancel != nil {
		s.cancel()
	}
}

// closeChannel gracefully closes the attached channel, if any.
func (s *Session) closeChannel() {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch != nil {
		_ = ch.Close()
	}
}
