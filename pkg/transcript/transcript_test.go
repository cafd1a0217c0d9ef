package transcript

import (
	"fmt"
	"sync"
	"testing"
)

func TestAppendAssignsSequence(t *testing.T) {
	log := NewLog()

	first := log.Append("Hi", RoleAgent, "mr-beast")
	second := log.Append("Hello", RoleUser, "")

	if first.Seq != 1 {
		t.Errorf("first Seq = %d, want 1", first.Seq)
	}
	if second.Seq != 2 {
		t.Errorf("second Seq = %d, want 2", second.Seq)
	}
	if second.AgentID != "" {
		t.Errorf("user entry AgentID = %q, want empty", second.AgentID)
	}
}

func TestAppendDropsAgentIDForUserRole(t *testing.T) {
	log := NewLog()
	e := log.Append("hello", RoleUser, "sneaky-agent")
	if e.AgentID != "" {
		t.Errorf("AgentID = %q, want empty for user role", e.AgentID)
	}
}

// TestConcurrentAppendOrdering checks that interleaved appends from N
// simulated sessions produce sequence numbers 1..total with no gaps or
// duplicates, and that each session's own sub-order is preserved.
func TestConcurrentAppendOrdering(t *testing.T) {
	const sessions = 8
	const perSession = 50

	log := NewLog()
	var wg sync.WaitGroup

	for s := 0; s < sessions; s++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			agentID := fmt.Sprintf("agent-%d", id)
			for i := 0; i < perSession; i++ {
				log.Append(fmt.Sprintf("msg-%d-%d", id, i), RoleAgent, agentID)
			}
		}(s)
	}
	wg.Wait()

	entries := log.Snapshot()
	total := sessions * perSession
	if len(entries) != total {
		t.Fatalf("len(entries) = %d, want %d", len(entries), total)
	}

	seen := make(map[uint64]bool, total)
	for i, e := range entries {
		if e.Seq != uint64(i+1) {
			t.Fatalf("entries[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
		if seen[e.Seq] {
			t.Fatalf("duplicate sequence number %d", e.Seq)
		}
		seen[e.Seq] = true
	}

	// Per-session sub-order: each session's messages must appear in the
	// order they were emitted.
	lastIdx := make(map[string]int, sessions)
	for _, e := range entries {
		var id, n int
		if _, err := fmt.Sscanf(e.Text, "msg-%d-%d", &id, &n); err != nil {
			t.Fatalf("unexpected text %q", e.Text)
		}
		if prev, ok := lastIdx[e.AgentID]; ok && n != prev+1 {
			t.Fatalf("session %s emitted %d after %d", e.AgentID, n, prev)
		}
		lastIdx[e.AgentID] = n
	}
}

func TestSnapshotIsImmutableCopy(t *testing.T) {
	log := NewLog()
	log.Append("one", RoleUser, "")

	snap := log.Snapshot()
	log.Append("two", RoleUser, "")

	if len(snap) != 1 {
		t.Fatalf("snapshot len = %d, want 1 (no future leakage)", len(snap))
	}

	// Mutating the snapshot must not affect the log.
	snap[0].Text = "tampered"
	if got := log.Snapshot()[0].Text; got != "one" {
		t.Errorf("log entry text = %q, want %q", got, "one")
	}
}

func TestAgentsInvolved(t *testing.T) {
	log := NewLog()
	log.Append("a speaks", RoleAgent, "a")
	log.Append("user", RoleUser, "")
	log.Append("b speaks", RoleAgent, "b")
	log.Append("a again", RoleAgent, "a")

	got := AgentsInvolved(log.Snapshot())
	want := []string{"a", "b"}
	if len(got) != len(want) {
		t.Fatalf("AgentsInvolved = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AgentsInvolved[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
