// Package mentorai manages realtime voice conversations with a roster
// of mentor agents. It wires the session registry, shared transcript,
// webhook relay, and record store into one conversation manager.
package mentorai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/WuVi5054/mentor-ai/pkg/catalog"
	"github.com/WuVi5054/mentor-ai/pkg/config"
	"github.com/WuVi5054/mentor-ai/pkg/elevenlabs"
	"github.com/WuVi5054/mentor-ai/pkg/mic"
	"github.com/WuVi5054/mentor-ai/pkg/observability"
	"github.com/WuVi5054/mentor-ai/pkg/relay"
	"github.com/WuVi5054/mentor-ai/pkg/session"
	"github.com/WuVi5054/mentor-ai/pkg/signer"
	"github.com/WuVi5054/mentor-ai/pkg/store"
	"github.com/WuVi5054/mentor-ai/pkg/transcript"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// deliveryTimeout bounds a single webhook post made from a trigger.
const deliveryTimeout = 60 * time.Second

// Manager owns one conversation: a shared transcript, the per-agent
// session registry, and delivery of conversation snapshots to the
// webhook sink. A Manager is safe for concurrent use.
type Manager struct {
	conversationID string
	userID         string

	catalog  *catalog.Catalog
	log      *transcript.Log
	registry *session.Registry
	relay    *relay.Relay
	store    store.Store
	cron     *cron.Cron

	mu     sync.Mutex
	closed bool
}

// Options overrides collaborators during construction, mainly for
// tests. Zero-value fields fall back to the production wiring.
type Options struct {
	Gate     mic.Gate
	Signer   signer.Source
	Provider session.ChannelProvider
	Store    store.Store
	Relay    *relay.Relay
}

// NewManager builds a conversation manager from configuration. The
// conversation id is fixed here and shared by every snapshot the
// manager delivers.
func NewManager(cfg *config.Config, opts Options) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		var err error
		cat, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
	}

	src := opts.Signer
	if src == nil {
		var err error
		src, err = signer.NewClient(signer.Config{
			BaseURL: cfg.SignerBaseURL,
			APIKey:  cfg.ElevenLabsKey,
			Timeout: cfg.SigningTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("signer: %w", err)
		}
	}

	rl := opts.Relay
	if rl == nil && cfg.Sink.URL != "" {
		policy := relay.SingleAttempt()
		if cfg.Sink.Policy == "backoff" {
			policy = relay.DefaultBackoff()
		}
		var err error
		rl, err = relay.New(relay.Config{
			SinkURL:           cfg.Sink.URL,
			Policy:            policy,
			RequestsPerSecond: cfg.Sink.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("relay: %w", err)
		}
	}

	st := opts.Store
	if st == nil {
		var err error
		st, err = OpenStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
	}

	gate := opts.Gate
	if gate == nil {
		gate = mic.FromEnv()
	}

	var provider session.ChannelProvider = opts.Provider
	if provider == nil {
		provider = elevenlabs.NewProvider()
	}

	m := &Manager{
		conversationID: uuid.New().String(),
		userID:         cfg.UserID,
		catalog:        cat,
		log:            transcript.NewLog(),
		relay:          rl,
		store:          st,
	}

	reg, err := session.NewRegistry(session.Config{
		Gate:       gate,
		Signer:     src,
		Provider:   provider,
		Transcript: m.log,
		OnDelivery: m.deliver,
	})
	if err != nil {
		return nil, err
	}
	m.registry = reg

	if st != nil && rl != nil {
		m.cron = cron.New()
		if _, err := m.cron.AddFunc(cfg.Runtime.SweepSchedule, m.sweep); err != nil {
			return nil, fmt.Errorf("sweep schedule: %w", err)
		}
		m.cron.Start()
	}

	return m, nil
}

// OpenStore builds the record store named by the config.
func OpenStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "file":
		return store.NewFileStore(cfg.Store.Dir)
	case "redis":
		return store.NewRedisStore(store.RedisConfig{
			Addr:      cfg.Store.RedisAddr,
			Password:  cfg.Store.RedisPassword,
			DB:        cfg.Store.RedisDB,
			RecordTTL: cfg.Store.RedisTTL,
		})
	case "firestore":
		return store.NewFirestoreStore(context.Background(), store.FirestoreConfig{
			ProjectID:       cfg.Store.GCPProject,
			CredentialsFile: cfg.Store.GCPCredentials,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// ConversationID returns the id shared by all snapshots of this
// conversation.
func (m *Manager) ConversationID() string { return m.conversationID }

// Catalog returns the mentor roster.
func (m *Manager) Catalog() *catalog.Catalog { return m.catalog }

// Errors exposes asynchronous session failures for display.
func (m *Manager) Errors() <-chan error { return m.registry.Errors() }

// StartAgent starts a session for the agent id from the roster.
func (m *Manager) StartAgent(ctx context.Context, agentID string) (*session.Session, error) {
	agent, ok := m.catalog.ByID(agentID)
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", agentID)
	}
	return m.registry.Start(ctx, agent)
}

// StopAgent ends the agent's session. Unknown ids are a no-op.
func (m *Manager) StopAgent(agentID string) { m.registry.Stop(agentID) }

// ActiveSessions returns the sorted ids of agents with live sessions.
func (m *Manager) ActiveSessions() []string { return m.registry.ActiveSessions() }

// Transcript returns an immutable snapshot of the conversation so far.
func (m *Manager) Transcript() []transcript.Entry { return m.log.Snapshot() }

// AppendUserTurn records a typed user message in the shared transcript,
// outside of any realtime channel.
func (m *Manager) AppendUserTurn(text string) transcript.Entry {
	entry := m.log.Append(text, transcript.RoleUser, "")
	observability.RecordTranscriptEntry(string(transcript.RoleUser))
	return entry
}

// History returns the persisted records for the manager's user, oldest
// first.
func (m *Manager) History(ctx context.Context) ([]*relay.Record, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.History(ctx, m.userID)
}

// deliver snapshots the transcript and posts it to the sink. It runs on
// every trigger and never blocks the caller: delivery happens on its
// own goroutine, and failures are spooled for the sweep.
func (m *Manager) deliver(reason string) {
	rec := relay.NewRecord(m.conversationID, m.userID, reason, m.log.Snapshot())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		if m.relay == nil {
			m.spool(ctx, rec, false)
			return
		}
		if err := m.relay.Deliver(ctx, rec); err != nil {
			log.Printf("delivery failed (%s), spooling %s: %v", reason, rec.ID, err)
			m.spool(ctx, rec, false)
			return
		}
		m.spool(ctx, rec, true)
	}()
}

// spool persists the record with its delivery status.
func (m *Manager) spool(ctx context.Context, rec *relay.Record, delivered bool) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, rec, delivered); err != nil {
		log.Printf("spool %s: %v", rec.ID, err)
	}
}

// sweep redelivers spooled records. Runs on the cron schedule; each
// success is marked delivered so the record leaves the pending set.
func (m *Manager) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*deliveryTimeout)
	defer cancel()

	pending, err := m.store.Pending(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrStoreClosed) {
			log.Printf("sweep: %v", err)
		}
		return
	}
	observability.SetSpooledRecords(len(pending))

	for _, rec := range pending {
		if err := m.relay.Deliver(ctx, rec); err != nil {
			log.Printf("sweep: redelivery of %s failed: %v", rec.ID, err)
			continue
		}
		if err := m.store.MarkDelivered(ctx, rec.ID); err != nil {
			log.Printf("sweep: mark %s delivered: %v", rec.ID, err)
		}
	}
}

// Sweep runs one redelivery pass immediately, outside the schedule.
func (m *Manager) Sweep() {
	if m.store == nil || m.relay == nil {
		return
	}
	m.sweep()
}

// Close stops all sessions, halts the sweep, and releases the store.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.registry.StopAll()
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}
