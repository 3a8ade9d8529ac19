package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/user/agentlink/internal/types"
)

// Message-generation stream labels.
const (
	LabelContent       = "content"
	LabelText          = "text"
	LabelToolCallStart = "tool_call_start"
	LabelToolCallEnd   = "tool_call_end"
	LabelReasoning     = "reasoning"
	LabelDone          = "done"
	LabelEnd           = "end"
	LabelError         = "error"

	// defaultStreamLabel is assumed for blocks without an event line.
	defaultStreamLabel = "message"
)

// StreamEvent is one decoded event of the message-generation stream:
// Content, ToolCallStart, ToolCallEnd, Reasoning, Done or StreamError.
type StreamEvent interface {
	isStreamEvent()
}

type Content struct {
	Text string
}

type ToolCallStart struct {
	Call types.ToolCall
}

type ToolCallEnd struct {
	Result types.ToolCallResult
}

type Reasoning struct {
	Text string
}

// Done ends the stream. Message is zero-valued when the daemon sent a
// payload that could not be parsed.
type Done struct {
	Message types.Message
}

// StreamError ends the stream with a daemon-reported failure.
type StreamError struct {
	Message string
}

func (Content) isStreamEvent()       {}
func (ToolCallStart) isStreamEvent() {}
func (ToolCallEnd) isStreamEvent()   {}
func (Reasoning) isStreamEvent()     {}
func (Done) isStreamEvent()          {}
func (StreamError) isStreamEvent()   {}

// NewStreamScanner decodes a message-generation stream. A trailing block
// without a closing blank line is still decoded at end of stream.
func NewStreamScanner(r io.Reader, logger *slog.Logger) *Scanner[StreamEvent] {
	if logger == nil {
		logger = slog.Default()
	}
	return newScanner(r, logger, true, func(b Block) (StreamEvent, bool) {
		ev, err := DecodeStreamEvent(b)
		if err != nil {
			logger.Warn("dropping malformed stream event", "event", b.Event, "error", err)
			return nil, false
		}
		return ev, true
	})
}

// DecodeStreamEvent maps a block onto the message-generation vocabulary.
// Unrecognized labels are passed through as Content rather than dropped.
func DecodeStreamEvent(b Block) (StreamEvent, error) {
	label := b.Event
	if !b.HasEvent {
		label = defaultStreamLabel
	}

	switch label {
	case LabelContent, LabelText:
		return Content{Text: b.Data}, nil
	case LabelToolCallStart:
		var call types.ToolCall
		if err := json.Unmarshal([]byte(b.Data), &call); err != nil {
			return nil, fmt.Errorf("decode tool call: %w", err)
		}
		if call.ID == "" || call.Name == "" {
			return nil, fmt.Errorf("decode tool call: missing id or name")
		}
		return ToolCallStart{Call: call}, nil
	case LabelToolCallEnd:
		var result types.ToolCallResult
		if err := json.Unmarshal([]byte(b.Data), &result); err != nil {
			return nil, fmt.Errorf("decode tool result: %w", err)
		}
		if result.ID == "" {
			return nil, fmt.Errorf("decode tool result: missing id")
		}
		return ToolCallEnd{Result: result}, nil
	case LabelReasoning:
		return Reasoning{Text: b.Data}, nil
	case LabelDone, LabelEnd:
		var msg types.Message
		if err := json.Unmarshal([]byte(b.Data), &msg); err != nil || msg.ID == "" {
			return Done{}, nil
		}
		return Done{Message: msg}, nil
	case LabelError:
		return StreamError{Message: b.Data}, nil
	default:
		return Content{Text: b.Data}, nil
	}
}
