package types

import (
	"encoding/json"
	"fmt"
	"slices"
)

// PartType is the wire tag of a part's content.
type PartType string

const (
	PartText      PartType = "text"
	PartToolUse   PartType = "tool_use"
	PartReasoning PartType = "reasoning"

	// partToolResult only appears inside Message.Parts and is folded into
	// a completed ToolUseContent on decode.
	partToolResult PartType = "tool_result"
)

// PartContent is the closed set of part payloads: TextContent,
// ToolUseContent and ReasoningContent. Callers switch on the concrete type.
type PartContent interface {
	Type() PartType
	isPartContent()
}

type TextContent struct {
	Text string
}

type ReasoningContent struct {
	Text string
}

type ToolUseContent struct {
	ToolUseID string
	Name      string
	Input     json.RawMessage
	State     ToolState
}

func (TextContent) Type() PartType      { return PartText }
func (ReasoningContent) Type() PartType { return PartReasoning }
func (ToolUseContent) Type() PartType   { return PartToolUse }

func (TextContent) isPartContent()      {}
func (ReasoningContent) isPartContent() {}
func (ToolUseContent) isPartContent()   {}

type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

type ToolState struct {
	Status   ToolStatus      `json:"status"`
	Output   string          `json:"output,omitempty"`
	IsError  bool            `json:"isError"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Part is a streamed fragment of a message, kept in the Store keyed by
// MessageID and ordered by ID.
type Part struct {
	ID        PartID
	MessageID MessageID
	SessionID SessionID
	Content   PartContent
}

// Clone returns a deep copy of p.
func (p Part) Clone() Part {
	p.Content = cloneContent(p.Content)
	return p
}

type partHeader struct {
	ID        PartID    `json:"id"`
	MessageID MessageID `json:"messageId"`
	SessionID SessionID `json:"sessionId,omitempty"`
	Type      PartType  `json:"type"`
}

type textFields struct {
	Text string `json:"text"`
}

type toolUseFields struct {
	ToolUseID string          `json:"toolUseId"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	State     *ToolState      `json:"state"`
}

type toolResultFields struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

func (p *Part) UnmarshalJSON(data []byte) error {
	var head partHeader
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	if head.Type == partToolResult {
		return fmt.Errorf("unknown part type %q", head.Type)
	}
	content, err := decodeContent(head.Type, data, false)
	if err != nil {
		return err
	}
	*p = Part{ID: head.ID, MessageID: head.MessageID, SessionID: head.SessionID, Content: content}
	return nil
}

func (p Part) MarshalJSON() ([]byte, error) {
	fields := map[string]any{
		"id":        p.ID,
		"messageId": p.MessageID,
	}
	if p.SessionID != "" {
		fields["sessionId"] = p.SessionID
	}
	if err := encodeContent(fields, p.Content, false); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// MessagePart is one element of Message.Parts. It carries the same closed
// content set as Part but no identity of its own.
type MessagePart struct {
	Content PartContent
}

func (m *MessagePart) UnmarshalJSON(data []byte) error {
	var head partHeader
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	content, err := decodeContent(head.Type, data, true)
	if err != nil {
		return err
	}
	m.Content = content
	return nil
}

func (m MessagePart) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if err := encodeContent(fields, m.Content, true); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// decodeContent parses the type-specific fields of a part. In message
// context the tool use id travels as "id" and tool results are accepted.
func decodeContent(t PartType, data []byte, inMessage bool) (PartContent, error) {
	switch t {
	case PartText:
		var f textFields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return TextContent{Text: f.Text}, nil
	case PartReasoning:
		var f textFields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return ReasoningContent{Text: f.Text}, nil
	case PartToolUse:
		var f toolUseFields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		c := ToolUseContent{ToolUseID: f.ToolUseID, Name: f.Name, Input: f.Input}
		if c.ToolUseID == "" && inMessage {
			c.ToolUseID = f.ID
		}
		if c.Name == "" {
			return nil, fmt.Errorf("tool_use part without name")
		}
		if f.State != nil {
			c.State = *f.State
		}
		if c.State.Status == "" {
			c.State.Status = ToolPending
		}
		return c, nil
	case partToolResult:
		if !inMessage {
			break
		}
		var f toolResultFields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		status := ToolCompleted
		if f.IsError {
			status = ToolError
		}
		return ToolUseContent{
			ToolUseID: f.ToolUseID,
			State:     ToolState{Status: status, Output: f.Content, IsError: f.IsError},
		}, nil
	}
	return nil, fmt.Errorf("unknown part type %q", t)
}

func encodeContent(fields map[string]any, c PartContent, inMessage bool) error {
	switch c := c.(type) {
	case TextContent:
		fields["type"] = PartText
		fields["text"] = c.Text
	case ReasoningContent:
		fields["type"] = PartReasoning
		fields["text"] = c.Text
	case ToolUseContent:
		fields["type"] = PartToolUse
		if inMessage {
			fields["id"] = c.ToolUseID
		} else {
			fields["toolUseId"] = c.ToolUseID
		}
		fields["name"] = c.Name
		fields["input"] = c.Input
		fields["state"] = c.State
	case nil:
		return fmt.Errorf("part has no content")
	default:
		return fmt.Errorf("unsupported part content %T", c)
	}
	return nil
}

func cloneContent(c PartContent) PartContent {
	switch c := c.(type) {
	case ToolUseContent:
		c.Input = slices.Clone(c.Input)
		c.State.Metadata = slices.Clone(c.State.Metadata)
		return c
	default:
		return c
	}
}
