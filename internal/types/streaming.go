package types

import (
	"encoding/json"
	"slices"
)

// ToolCall is the payload of a tool_call_start event on the
// message-generation stream.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolCallResult is the payload of a tool_call_end event.
type ToolCallResult struct {
	ID      string  `json:"id"`
	Output  *string `json:"output,omitempty"`
	IsError bool    `json:"is_error"`
}

type ToolCallStatus string

const (
	ToolCallPending ToolCallStatus = "pending"
	ToolCallRunning ToolCallStatus = "running"
	ToolCallSuccess ToolCallStatus = "success"
	ToolCallError   ToolCallStatus = "error"
)

type StreamingToolCall struct {
	ID     string
	Name   string
	Input  string
	Output *string
	Status ToolCallStatus
}

// StreamingMessage accumulates an assistant reply while it is generated.
// It is not a committed Message; it is replaced once the final message
// is known.
type StreamingMessage struct {
	SessionID SessionID
	MessageID MessageID
	Content   string
	ToolCalls []StreamingToolCall
	Reasoning string
	Complete  bool
	Err       string
}

func (s StreamingMessage) Clone() StreamingMessage {
	if s.ToolCalls != nil {
		calls := make([]StreamingToolCall, len(s.ToolCalls))
		for i, tc := range s.ToolCalls {
			if tc.Output != nil {
				out := *tc.Output
				tc.Output = &out
			}
			calls[i] = tc
		}
		s.ToolCalls = calls
	}
	return s
}

// ToolIndex returns the position of the tool call with the given id, or -1.
func (s *StreamingMessage) ToolIndex(id string) int {
	return slices.IndexFunc(s.ToolCalls, func(tc StreamingToolCall) bool { return tc.ID == id })
}
