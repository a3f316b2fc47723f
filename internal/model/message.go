package model

import (
	"encoding/json"
	"time"
)

// MessageMeta is the closed set of structured metadata a message can carry.
// Kind tags the variant; AgentName is only set for agent-authored messages.
type MessageMeta struct {
	Kind      MessageKind `json:"kind"`
	AgentName string      `json:"agentName,omitempty"`
}

func NormalMeta(agentName string) MessageMeta {
	return MessageMeta{Kind: MessageKindNormal, AgentName: agentName}
}

func SystemCloseMeta() MessageMeta {
	return MessageMeta{Kind: MessageKindSystemClose}
}

func (m MessageMeta) Value() json.RawMessage {
	data, _ := json.Marshal(m)
	return data
}

type ChatMessage struct {
	ID             string          `db:"id" json:"id"`
	SessionID      string          `db:"session_id" json:"sessionId"`
	SenderName     string          `db:"sender_name" json:"senderName"`
	SenderIdentity string          `db:"sender_identity" json:"senderIdentity"`
	Body           string          `db:"body" json:"body"`
	IsUser         bool            `db:"is_user" json:"isUser"`
	IsRead         bool            `db:"is_read" json:"isRead"`
	Meta           json.RawMessage `db:"meta" json:"meta"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// Kind decodes the metadata tag. Messages with unparseable or missing
// metadata are treated as normal.
func (m *ChatMessage) Kind() MessageKind {
	var meta MessageMeta
	if err := json.Unmarshal(m.Meta, &meta); err != nil || meta.Kind == "" {
		return MessageKindNormal
	}
	return meta.Kind
}

// ToEventData returns JSON data for message events pushed to subscribers.
func (m *ChatMessage) ToEventData() json.RawMessage {
	data, _ := json.Marshal(m)
	return data
}

type AppendMessageParams struct {
	ID             string
	SessionID      string
	SenderName     string
	SenderIdentity string
	Body           string
	IsUser         bool
	IsRead         bool
	Meta           json.RawMessage
}
