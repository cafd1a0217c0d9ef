package mentorai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WuVi5054/mentor-ai/pkg/config"
	"github.com/WuVi5054/mentor-ai/pkg/mic"
	"github.com/WuVi5054/mentor-ai/pkg/relay"
	"github.com/WuVi5054/mentor-ai/pkg/session"
	"github.com/WuVi5054/mentor-ai/pkg/store"
	"github.com/WuVi5054/mentor-ai/pkg/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSigner struct{}

func (scriptedSigner) SignedURL(ctx context.Context, agentID string) (string, error) {
	return "wss://example.test/" + agentID, nil
}

type scriptedChannel struct {
	mu     sync.Mutex
	events chan session.Event
	closed bool
}

func newScriptedChannel() *scriptedChannel {
	return &scriptedChannel{events: make(chan session.Event, 16)}
}

func (c *scriptedChannel) Events() <-chan session.Event { return c.events }

func (c *scriptedChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *scriptedChannel) emit(ev session.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.events <- ev
	}
}

type scriptedProvider struct {
	mu       sync.Mutex
	channels map[string]*scriptedChannel
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{channels: make(map[string]*scriptedChannel)}
}

func (p *scriptedProvider) Open(ctx context.Context, url string) (session.Channel, error) {
	return p.channel(url), nil
}

func (p *scriptedProvider) channel(url string) *scriptedChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[url]
	if !ok {
		ch = newScriptedChannel()
		p.channels[url] = ch
	}
	return ch
}

func (p *scriptedProvider) channelFor(agentID string) *scriptedChannel {
	return p.channel("wss://example.test/" + agentID)
}

// sink captures webhook posts and can be told to fail.
type sink struct {
	srv      *httptest.Server
	failing  atomic.Bool
	mu       sync.Mutex
	payloads []map[string]string
}

func newSink(t *testing.T) *sink {
	t.Helper()
	s := &sink{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.payloads = append(s.payloads, body)
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *sink) received() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]string, len(s.payloads))
	copy(out, s.payloads)
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		ElevenLabsKey: "test-key",
		UserID:        "user-1",
		Sink:          config.SinkConfig{Policy: "single"},
		Store:         config.StoreConfig{Backend: "file"},
		Runtime:       config.RuntimeConfig{SweepSchedule: "@every 1h"},
	}
}

func newTestManager(t *testing.T, sinkURL string) (*Manager, *scriptedProvider, store.Store) {
	t.Helper()

	fileStore, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	rl, err := relay.New(relay.Config{SinkURL: sinkURL})
	require.NoError(t, err)

	provider := newScriptedProvider()
	m, err := NewManager(testConfig(), Options{
		Gate:     mic.Always(),
		Signer:   scriptedSigner{},
		Provider: provider,
		Store:    fileStore,
		Relay:    rl,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, provider, fileStore
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.UserID = ""
	_, err := NewManager(cfg, Options{})
	assert.Error(t, err)
}

func TestStartAgentUnknownID(t *testing.T) {
	s := newSink(t)
	m, _, _ := newTestManager(t, s.srv.URL)

	_, err := m.StartAgent(context.Background(), "socrates")
	assert.Error(t, err)
	assert.Empty(t, m.ActiveSessions())
}

func TestConversationFlowDeliversSnapshots(t *testing.T) {
	s := newSink(t)
	m, provider, _ := newTestManager(t, s.srv.URL)

	sess, err := m.StartAgent(context.Background(), "naval-ravikant")
	require.NoError(t, err)

	ch := provider.channelFor(sess.Agent().ID)
	ch.emit(session.Event{Kind: session.EventOpen})
	ch.emit(session.Event{Kind: session.EventMessage, Text: "Seek wealth, not money.", Source: session.SourceAgent})
	eventually(t, "transcript entry", func() bool { return len(m.Transcript()) == 1 })

	m.AppendUserTurn("What is the difference?")
	m.StopAgent(sess.Agent().ID)

	// connect and stop each produce one snapshot
	eventually(t, "two deliveries", func() bool { return len(s.received()) == 2 })

	// Deliveries run concurrently; find the stop snapshot by its size.
	var last map[string]string
	var msgs []map[string]any
	for _, p := range s.received() {
		var decoded []map[string]any
		require.NoError(t, json.Unmarshal([]byte(p["messages"]), &decoded))
		if len(decoded) == 2 {
			last, msgs = p, decoded
		}
	}
	require.NotNil(t, last, "no snapshot with the full transcript")
	assert.Equal(t, m.ConversationID(), last["conversation_id"])
	assert.Equal(t, "user-1", last["user_id"])
	assert.Equal(t, "Seek wealth, not money.", msgs[0]["text"])
	assert.Equal(t, string(transcript.RoleAgent), msgs[0]["role"])
	assert.Equal(t, "What is the difference?", msgs[1]["text"])

	var involved []string
	require.NoError(t, json.Unmarshal([]byte(last["agents_involved"]), &involved))
	assert.Equal(t, []string{sess.Agent().ID}, involved)

	// Both snapshots persisted as delivered history.
	eventually(t, "history", func() bool {
		recs, err := m.History(context.Background())
		return err == nil && len(recs) == 2
	})
}

func TestFailedDeliveryIsSpooledAndSwept(t *testing.T) {
	s := newSink(t)
	m, provider, fileStore := newTestManager(t, s.srv.URL)
	s.failing.Store(true)

	sess, err := m.StartAgent(context.Background(), "oprah-winfrey")
	require.NoError(t, err)

	ch := provider.channelFor(sess.Agent().ID)
	ch.emit(session.Event{Kind: session.EventOpen})
	eventually(t, "spooled record", func() bool {
		pending, err := fileStore.Pending(context.Background())
		return err == nil && len(pending) == 1
	})
	assert.Empty(t, s.received())

	s.failing.Store(false)
	m.Sweep()

	eventually(t, "redelivery", func() bool { return len(s.received()) == 1 })
	pending, err := fileStore.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAppendUserTurnSequencing(t *testing.T) {
	s := newSink(t)
	m, _, _ := newTestManager(t, s.srv.URL)

	first := m.AppendUserTurn("hello")
	second := m.AppendUserTurn("again")
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, transcript.RoleUser, first.Role)
	assert.Empty(t, first.AgentID)
}
