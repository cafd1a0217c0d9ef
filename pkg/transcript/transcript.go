// Package transcript provides the shared conversation transcript.
// All active sessions append into one Log, which assigns a globally
// ordered sequence number to every entry.
package transcript

import (
	"sync"
	"time"
)

// Role identifies who produced a transcript entry.
type Role string

const (
	// RoleAgent marks an entry spoken by an AI mentor agent.
	RoleAgent Role = "agent"
	// RoleUser marks an entry spoken or typed by the user.
	RoleUser Role = "user"
)

// Entry is a single conversation turn. Entries are immutable once
// created; Seq is the authoritative order, Timestamp is informational.
type Entry struct {
	// Text is the spoken or typed content.
	Text string `json:"text"`
	// Role indicates agent or user.
	Role Role `json:"role"`
	// AgentID is set only when Role is RoleAgent.
	AgentID string `json:"agent_id,omitempty"`
	// Seq is strictly increasing across all sessions, assigned at append.
	Seq uint64 `json:"seq"`
	// Timestamp is the capture time. Entries from concurrent sessions may
	// arrive out of timestamp order but never out of Seq order.
	Timestamp time.Time `json:"timestamp"`
}

// Appender is the write capability handed to sessions. Sessions never
// see the underlying log, only this interface.
type Appender interface {
	Append(text string, role Role, agentID string) Entry
}

// Snapshotter is the read capability handed to the delivery relay.
type Snapshotter interface {
	Snapshot() []Entry
	Len() int
}

// Log is the append-only transcript shared by all sessions.
// Log is safe for concurrent use.
type Log struct {
	// mu is the single serialization point for sequence assignment.
	// Every append from every session funnels through it, so sequence
	// numbers stay gap-free and per-session emission order is preserved
	// even under a future multi-threaded caller.
	mu      sync.Mutex
	next    uint64
	entries []Entry
}

// NewLog creates an empty transcript log.
func NewLog() *Log {
	return &Log{}
}

// Append records a turn and assigns the next sequence number.
// Cross-session order is first-observed-first-numbered.
func (l *Log) Append(text string, role Role, agentID string) Entry {
	if role != RoleAgent {
		agentID = ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	entry := Entry{
		Text:      text,
		Role:      role,
		AgentID:   agentID,
		Seq:       l.next,
		Timestamp: time.Now().UTC(),
	}
	l.entries = append(l.entries, entry)
	return entry
}

// Snapshot returns an immutable point-in-time copy of the transcript,
// never a live view. A snapshot taken at time T reflects every append
// observed before T and none observed after.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries appended so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// AgentsInvolved derives the set of distinct agent ids present in the
// given entries, in first-appearance order.
func AgentsInvolved(entries []Entry) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, e := range entries {
		if e.Role != RoleAgent || e.AgentID == "" {
			continue
		}
		if _, ok := seen[e.AgentID]; ok {
			continue
		}
		seen[e.AgentID] = struct{}{}
		ids = append(ids, e.AgentID)
	}
	return ids
}
