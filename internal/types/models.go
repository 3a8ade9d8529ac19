// internal/types/models.go
package types

import (
	"encoding/json"
	"slices"
)

type ModelInfo struct {
	ProviderID string `json:"providerId"`
	ModelID    string `json:"modelId"`
}

type Session struct {
	ID           SessionID  `json:"id"`
	Title        string     `json:"title,omitempty"`
	CreatedAt    int64      `json:"createdAt"`
	UpdatedAt    int64      `json:"updatedAt"`
	Agent        string     `json:"agent,omitempty"`
	Model        *ModelInfo `json:"model,omitempty"`
	MessageCount int        `json:"messageCount"`
}

// Clone returns a copy of s that shares no memory with it.
func (s Session) Clone() Session {
	if s.Model != nil {
		m := *s.Model
		s.Model = &m
	}
	return s
}

type SessionStatus struct {
	Busy  bool   `json:"busy"`
	Agent string `json:"agent,omitempty"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type MessageTime struct {
	Created   int64  `json:"created"`
	Completed *int64 `json:"completed,omitempty"`
}

type FileDiff struct {
	File      string `json:"file"`
	Before    string `json:"before"`
	After     string `json:"after"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

type MessageSummary struct {
	Title string     `json:"title,omitempty"`
	Body  string     `json:"body,omitempty"`
	Diffs []FileDiff `json:"diffs,omitempty"`
}

type Message struct {
	ID        MessageID       `json:"id"`
	SessionID SessionID       `json:"sessionId"`
	Role      Role            `json:"role"`
	Time      MessageTime     `json:"time"`
	Summary   *MessageSummary `json:"summary,omitempty"`
	Agent     string          `json:"agent,omitempty"`
	Parts     []MessagePart   `json:"parts"`
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	if m.Time.Completed != nil {
		c := *m.Time.Completed
		m.Time.Completed = &c
	}
	if m.Summary != nil {
		s := *m.Summary
		s.Diffs = slices.Clone(s.Diffs)
		m.Summary = &s
	}
	if m.Parts != nil {
		parts := make([]MessagePart, len(m.Parts))
		for i, p := range m.Parts {
			parts[i] = MessagePart{Content: cloneContent(p.Content)}
		}
		m.Parts = parts
	}
	return m
}

// ToolReference points at the tool call that raised a permission or question.
type ToolReference struct {
	MessageID MessageID `json:"messageId"`
	CallID    string    `json:"callId"`
}

type PermissionRequest struct {
	ID         RequestID       `json:"id"`
	SessionID  SessionID       `json:"sessionId"`
	Permission string          `json:"permission"`
	Patterns   []string        `json:"patterns,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Always     []string        `json:"always,omitempty"`
	Tool       *ToolReference  `json:"tool,omitempty"`
}

func (p PermissionRequest) Clone() PermissionRequest {
	p.Patterns = slices.Clone(p.Patterns)
	p.Always = slices.Clone(p.Always)
	p.Metadata = slices.Clone(p.Metadata)
	if p.Tool != nil {
		t := *p.Tool
		p.Tool = &t
	}
	return p
}

type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type QuestionInfo struct {
	Question string           `json:"question"`
	Header   string           `json:"header"`
	Options  []QuestionOption `json:"options"`
	Multiple bool             `json:"multiple"`
	Custom   bool             `json:"custom"`
}

// UnmarshalJSON defaults Custom to true when the field is absent.
func (q *QuestionInfo) UnmarshalJSON(data []byte) error {
	type plain QuestionInfo
	v := plain{Custom: true}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*q = QuestionInfo(v)
	return nil
}

type QuestionRequest struct {
	ID        RequestID      `json:"id"`
	SessionID SessionID      `json:"sessionId"`
	Questions []QuestionInfo `json:"questions"`
	Tool      *ToolReference `json:"tool,omitempty"`
}

func (q QuestionRequest) Clone() QuestionRequest {
	if q.Questions != nil {
		qs := make([]QuestionInfo, len(q.Questions))
		for i, info := range q.Questions {
			info.Options = slices.Clone(info.Options)
			qs[i] = info
		}
		q.Questions = qs
	}
	if q.Tool != nil {
		t := *q.Tool
		q.Tool = &t
	}
	return q
}

type Provider struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Models    []string `json:"models"`
	Enabled   bool     `json:"enabled"`
	HasAPIKey bool     `json:"hasApiKey"`
}

type Model struct {
	ID            string  `json:"id"`
	ProviderID    string  `json:"providerId"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	ContextLength int     `json:"contextLength"`
	InputCost     float64 `json:"inputCost"`
	OutputCost    float64 `json:"outputCost"`
}
