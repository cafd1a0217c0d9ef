package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/WuVi5054/mentor-ai/pkg/catalog"
	"github.com/WuVi5054/mentor-ai/pkg/mic"
	"github.com/WuVi5054/mentor-ai/pkg/observability"
	"github.com/WuVi5054/mentor-ai/pkg/signer"
	"github.com/WuVi5054/mentor-ai/pkg/transcript"
)

// Delivery trigger reasons, passed to the relay trigger callback.
const (
	TriggerConnect    = "connect"
	TriggerDisconnect = "disconnect"
	TriggerStop       = "stop"
)

var (
	// ErrAlreadyActive is returned when a non-terminal session already
	// exists for the agent id.
	ErrAlreadyActive = errors.New("session already active for agent")
	// ErrChannel marks an unrecoverable realtime channel error. The
	// session moves to Failed and is removed; the caller may re-Start.
	ErrChannel = errors.New("realtime channel error")
)

// TriggerFunc is invoked at each delivery trigger point. It must not
// block: a slow or failed delivery must never delay Start, Stop, or a
// transcript append.
type TriggerFunc func(reason string)

// Config wires a Registry's collaborators.
type Config struct {
	// Gate authorizes microphone capture before any session starts.
	Gate mic.Gate
	// Signer provides signed connection URLs.
	Signer signer.Source
	// Provider opens realtime channels.
	Provider ChannelProvider
	// Transcript receives every message event from every session.
	Transcript transcript.Appender
	// OnDelivery is called on connect, disconnect, and stop (optional).
	OnDelivery TriggerFunc
}

// Registry is the keyed collection of active sessions. It enforces at
// most one non-terminal session per agent id.
// Registry is safe for concurrent use.
type Registry struct {
	gate     mic.Gate
	signer   signer.Source
	provider ChannelProvider
	log      transcript.Appender
	deliver  TriggerFunc

	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]struct{} // ids reserved while the gate is consulted
	errs     chan error
}

// NewRegistry creates a session registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Gate == nil || cfg.Signer == nil || cfg.Provider == nil || cfg.Transcript == nil {
		return nil, errors.New("gate, signer, provider, and transcript are required")
	}
	return &Registry{
		gate:     cfg.Gate,
		signer:   cfg.Signer,
		provider: cfg.Provider,
		log:      cfg.Transcript,
		deliver:  cfg.OnDelivery,
		sessions: make(map[string]*Session),
		pending:  make(map[string]struct{}),
		errs:     make(chan error, 16),
	}, nil
}

// Errors returns the channel on which asynchronous session failures are
// reported. Failures are user-visible, never fatal to the registry.
func (r *Registry) Errors() <-chan error {
	return r.errs
}

// Start begins a session for the agent. It fails synchronously with
// ErrAlreadyActive or mic.ErrDenied; connection establishment continues
// asynchronously after it returns. Signing and channel failures resolve
// through the returned session's Done/Err and the Errors channel.
func (r *Registry) Start(ctx context.Context, agent catalog.Agent) (*Session, error) {
	// Reserve the id before consulting the gate so two concurrent starts
	// for the same agent cannot both pass the active check.
	r.mu.Lock()
	if s, ok := r.sessions[agent.ID]; ok && !s.State().Terminal() {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, agent.ID)
	}
	if _, ok := r.pending[agent.ID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, agent.ID)
	}
	r.pending[agent.ID] = struct{}{}
	r.mu.Unlock()

	// The gate may prompt the user. On deny, no session state changes
	// and the signer is never consulted.
	if err := r.gate.Acquire(ctx); err != nil {
		r.mu.Lock()
		delete(r.pending, agent.ID)
		r.mu.Unlock()
		observability.RecordSessionStart(agent.ID, "permission_denied")
		return nil, fmt.Errorf("start %s: %w", agent.ID, err)
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := newSession(agent, cancel)

	r.mu.Lock()
	delete(r.pending, agent.ID)
	r.sessions[agent.ID] = sess
	active := r.activeLocked()
	r.mu.Unlock()
	observability.SetActiveSessions(active)
	observability.RecordSessionStart(agent.ID, "connecting")

	go r.connect(sctx, sess)
	return sess, nil
}

// Stop ends the session for the agent id. Unknown or inactive ids are a
// no-op with no delivery trigger. Stop is safe while a Start for the
// same id is still suspended: the pending connection is cancelled and
// its result discarded.
func (r *Registry) Stop(agentID string) {
	r.mu.Lock()
	sess, ok := r.sessions[agentID]
	if ok {
		delete(r.sessions, agentID)
	}
	active := r.activeLocked()
	r.mu.Unlock()

	if !ok {
		return
	}

	sess.cancelPending()
	first := sess.end()
	sess.closeChannel()
	observability.SetActiveSessions(active)

	if first {
		r.trigger(TriggerStop)
	}
}

// StopAll stops every active session.
func (r *Registry) StopAll() {
	for _, id := range r.ActiveSessions() {
		r.Stop(id)
	}
}

// ActiveSessions returns the sorted ids of non-terminal sessions.
func (r *Registry) ActiveSessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id, s := range r.sessions {
		if !s.State().Terminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) activeLocked() int {
	n := 0
	for _, s := range r.sessions {
		if !s.State().Terminal() {
			n++
		}
	}
	return n
}

// connect resolves the signed URL and opens the channel. It runs after
// Start has returned; cancellation via Stop is observed at each
// suspension point, and a connection resolving after cancellation is
// discarded without error.
func (r *Registry) connect(ctx context.Context, sess *Session) {
	agentID := sess.agent.ID

	url, err := r.signer.SignedURL(ctx, agentID)
	if err != nil {
		if ctx.Err() != nil {
			return // stopped while suspended on the signed URL
		}
		r.fail(sess, fmt.Errorf("start %s: %w", agentID, err))
		return
	}
	if ctx.Err() != nil {
		return
	}

	ch, err := r.provider.Open(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.fail(sess, fmt.Errorf("start %s: %w: %v", agentID, ErrChannel, err))
		return
	}

	if !sess.attach(ch) {
		// Stopped while dialing; the orphaned channel is closed quietly.
		_ = ch.Close()
		return
	}

	go r.pump(sess, ch)
}

// pump consumes the session's ordered event queue and routes events
// into state transitions, transcript appends, and delivery triggers.
func (r *Registry) pump(sess *Session, ch Channel) {
	agentID := sess.agent.ID

	for ev := range ch.Events() {
		switch ev.Kind {
		case EventOpen:
			sess.setConnected()
			observability.RecordSessionStart(agentID, "connected")
			r.trigger(TriggerConnect)

		case EventModeChange:
			sess.setMode(ev.Mode)

		case EventMessage:
			role, id := transcript.RoleUser, ""
			if ev.Source == SourceAgent {
				role, id = transcript.RoleAgent, agentID
			}
			entry := r.log.Append(ev.Text, role, id)
			observability.RecordTranscriptEntry(string(role))
			log.Printf("transcript: seq=%d role=%s agent=%s", entry.Seq, role, id)

		case EventError:
			r.fail(sess, fmt.Errorf("session %s: %w: %v", agentID, ErrChannel, ev.Err))
			_ = ch.Close()
			return

		case EventClose:
			r.handleClose(sess)
			return
		}
	}

	// Queue closed without an explicit close event: treat as remote close.
	r.handleClose(sess)
}

// handleClose handles a remote close. When Stop already ended the
// session, end() reports false and no second trigger fires.
func (r *Registry) handleClose(sess *Session) {
	if !sess.end() {
		return
	}
	r.remove(sess.agent.ID, sess)
	r.trigger(TriggerDisconnect)
}

// fail moves the session to Failed, removes it from the active set, and
// reports the error. Failed sessions are never retried silently; the
// caller may re-invoke Start.
func (r *Registry) fail(sess *Session, err error) {
	if !sess.fail(err) {
		return
	}
	r.remove(sess.agent.ID, sess)
	observability.RecordSessionStart(sess.agent.ID, "failed")
	r.report(err)
}

// remove deletes the session from the registry if it is still the
// registered one for its id.
func (r *Registry) remove(agentID string, sess *Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[agentID]; ok && cur == sess {
		delete(r.sessions, agentID)
	}
	active := r.activeLocked()
	r.mu.Unlock()
	observability.SetActiveSessions(active)
}

func (r *Registry) trigger(reason string) {
	if r.deliver != nil {
		r.deliver(reason)
	}
}

// report sends the error to the Errors channel without blocking; when
// nobody is listening the error is only logged.
func (r *Registry) report(err error) {
	select {
	case r.errs <- err:
	default:
		log.Printf("session error (no listener): %v", err)
	}
}
