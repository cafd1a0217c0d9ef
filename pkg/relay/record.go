// Package relay serializes conversation snapshots and delivers them to
// the external analytics sink.
package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/WuVi5054/mentor-ai/pkg/transcript"
	"github.com/google/uuid"
)

// Record is an immutable snapshot of the conversation, created at a
// delivery trigger and discarded once delivery succeeds or is
// abandoned. It is never mutated after creation.
type Record struct {
	// ID uniquely identifies this snapshot, used as the spool key.
	ID string `json:"id"`
	// ConversationID identifies the conversation, fixed at manager init.
	ConversationID string `json:"conversation_id"`
	// UserID identifies the user.
	UserID string `json:"user_id"`
	// Trigger names the delivery trigger (connect, disconnect, stop).
	Trigger string `json:"trigger"`
	// CapturedAt is when the snapshot was taken.
	CapturedAt time.Time `json:"captured_at"`
	// Entries is the transcript copy at capture time.
	Entries []transcript.Entry `json:"entries"`
}

// NewRecord captures a delivery record from a transcript snapshot.
func NewRecord(conversationID, userID, trigger string, entries []transcript.Entry) *Record {
	return &Record{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		UserID:         userID,
		Trigger:        trigger,
		CapturedAt:     time.Now().UTC(),
		Entries:        entries,
	}
}

// AgentsInvolved returns the distinct agent ids present in the record.
func (r *Record) AgentsInvolved() []string {
	return transcript.AgentsInvolved(r.Entries)
}

// wireMessage is one transcript turn in the sink payload.
type wireMessage struct {
	Text      string `json:"text"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
	AgentID   string `json:"agent_id,omitempty"`
}

// wireMetadata is the derived metadata object in the sink payload.
type wireMetadata struct {
	TotalMessages int    `json:"totalMessages"`
	DurationMS    int64  `json:"duration"`
	Platform      string `json:"platform"`
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
}

// wirePayload is the sink body. The messages, agents_involved, and
// metadata fields are JSON-encoded strings, matching what the sink
// expects.
type wirePayload struct {
	Timestamp      string `json:"timestamp"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Messages       string `json:"messages"`
	AgentsInvolved string `json:"agents_involved"`
	Metadata       string `json:"metadata"`
}

// Payload renders the record into the sink's JSON body.
func (r *Record) Payload() ([]byte, error) {
	msgs := make([]wireMessage, 0, len(r.Entries))
	for _, e := range r.Entries {
		msgs = append(msgs, wireMessage{
			Text:      e.Text,
			Role:      string(e.Role),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			AgentID:   e.AgentID,
		})
	}
	messages, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}

	involved := r.AgentsInvolved()
	if involved == nil {
		involved = []string{}
	}
	agents, err := json.Marshal(involved)
	if err != nil {
		return nil, fmt.Errorf("encode agents: %w", err)
	}

	meta := wireMetadata{
		TotalMessages: len(r.Entries),
		Platform:      "go",
	}
	if len(r.Entries) > 0 {
		first := r.Entries[0].Timestamp
		last := r.Entries[len(r.Entries)-1].Timestamp
		meta.DurationMS = last.Sub(first).Milliseconds()
		meta.StartTime = first.Format(time.RFC3339Nano)
		meta.EndTime = last.Format(time.RFC3339Nano)
	}
	metadata, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	return json.Marshal(wirePayload{
		Timestamp:      r.CapturedAt.Format(time.RFC3339Nano),
		ConversationID: r.ConversationID,
		UserID:         r.UserID,
		Messages:       string(messages),
		AgentsInvolved: string(agents),
		Metadata:       string(metadata),
	})
}
