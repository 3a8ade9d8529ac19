package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/user/agentlink/internal/types"
)

// Daemon event labels.
const (
	LabelSessionCreated    = "session.created"
	LabelSessionUpdated    = "session.updated"
	LabelSessionDeleted    = "session.deleted"
	LabelSessionStatus     = "session.status"
	LabelMessageCreated    = "message.created"
	LabelMessageUpdated    = "message.updated"
	LabelMessageRemoved    = "message.removed"
	LabelPartUpdated       = "message.part.updated"
	LabelPartRemoved       = "message.part.removed"
	LabelPermissionAsked   = "permission.asked"
	LabelPermissionReplied = "permission.replied"
	LabelQuestionAsked     = "question.asked"
	LabelQuestionReplied   = "question.replied"
	LabelQuestionRejected  = "question.rejected"
	LabelConnectionStatus  = "connection.status"
	LabelKeepalive         = "keepalive"
)

// ErrUnknownLabel is returned by DecodeDaemonEvent for labels outside the
// daemon vocabulary.
var ErrUnknownLabel = errors.New("unknown daemon event label")

// DaemonEvent is one decoded event of the daemon's global event stream.
type DaemonEvent interface {
	Label() string
	isDaemonEvent()
}

type SessionCreated struct{ Session types.Session }
type SessionUpdated struct{ Session types.Session }
type SessionDeleted struct{ SessionID types.SessionID }

type SessionStatusChanged struct {
	SessionID types.SessionID
	Status    types.SessionStatus
}

type MessageCreated struct{ Message types.Message }
type MessageUpdated struct{ Message types.Message }

type MessageRemoved struct {
	SessionID types.SessionID
	MessageID types.MessageID
}

type PartUpdated struct{ Part types.Part }

type PartRemoved struct {
	MessageID types.MessageID
	PartID    types.PartID
}

type PermissionAsked struct{ Request types.PermissionRequest }

type PermissionReplied struct {
	SessionID types.SessionID
	RequestID types.RequestID
}

type QuestionAsked struct{ Request types.QuestionRequest }

// QuestionReplied covers both question.replied and question.rejected.
type QuestionReplied struct {
	SessionID types.SessionID
	RequestID types.RequestID
	Rejected  bool
}

type ConnectionStatus struct{ Connected bool }

type Keepalive struct{}

func (SessionCreated) Label() string       { return LabelSessionCreated }
func (SessionUpdated) Label() string       { return LabelSessionUpdated }
func (SessionDeleted) Label() string       { return LabelSessionDeleted }
func (SessionStatusChanged) Label() string { return LabelSessionStatus }
func (MessageCreated) Label() string       { return LabelMessageCreated }
func (MessageUpdated) Label() string       { return LabelMessageUpdated }
func (MessageRemoved) Label() string       { return LabelMessageRemoved }
func (PartUpdated) Label() string          { return LabelPartUpdated }
func (PartRemoved) Label() string          { return LabelPartRemoved }
func (PermissionAsked) Label() string      { return LabelPermissionAsked }
func (PermissionReplied) Label() string    { return LabelPermissionReplied }
func (QuestionAsked) Label() string        { return LabelQuestionAsked }
func (ConnectionStatus) Label() string     { return LabelConnectionStatus }
func (Keepalive) Label() string            { return LabelKeepalive }

func (e QuestionReplied) Label() string {
	if e.Rejected {
		return LabelQuestionRejected
	}
	return LabelQuestionReplied
}

func (SessionCreated) isDaemonEvent()       {}
func (SessionUpdated) isDaemonEvent()       {}
func (SessionDeleted) isDaemonEvent()       {}
func (SessionStatusChanged) isDaemonEvent() {}
func (MessageCreated) isDaemonEvent()       {}
func (MessageUpdated) isDaemonEvent()       {}
func (MessageRemoved) isDaemonEvent()       {}
func (PartUpdated) isDaemonEvent()          {}
func (PartRemoved) isDaemonEvent()          {}
func (PermissionAsked) isDaemonEvent()      {}
func (PermissionReplied) isDaemonEvent()    {}
func (QuestionAsked) isDaemonEvent()        {}
func (QuestionReplied) isDaemonEvent()      {}
func (ConnectionStatus) isDaemonEvent()     {}
func (Keepalive) isDaemonEvent()            {}

// NewDaemonScanner decodes the daemon event stream. Blocks without a label,
// with an unknown label or with an invalid payload are dropped and logged;
// the stream itself continues. A trailing block that never received its
// blank-line terminator is incomplete and is not decoded.
func NewDaemonScanner(r io.Reader, logger *slog.Logger) *Scanner[DaemonEvent] {
	if logger == nil {
		logger = slog.Default()
	}
	return newScanner(r, logger, false, func(b Block) (DaemonEvent, bool) {
		if !b.HasEvent {
			return nil, false
		}
		ev, err := DecodeDaemonEvent(b.Event, []byte(b.Data))
		if errors.Is(err, ErrUnknownLabel) {
			logger.Debug("ignoring unknown daemon event", "event", b.Event)
			return nil, false
		}
		if err != nil {
			logger.Warn("dropping malformed daemon event", "event", b.Event, "error", err)
			return nil, false
		}
		return ev, true
	})
}

var daemonDecoders = map[string]func([]byte) (DaemonEvent, error){
	LabelSessionCreated: func(data []byte) (DaemonEvent, error) {
		s, err := decodeSessionInfo(data)
		return SessionCreated{Session: s}, err
	},
	LabelSessionUpdated: func(data []byte) (DaemonEvent, error) {
		s, err := decodeSessionInfo(data)
		return SessionUpdated{Session: s}, err
	},
	LabelSessionDeleted: func(data []byte) (DaemonEvent, error) {
		var p struct {
			Info struct {
				ID string `json:"id"`
			} `json:"info"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.Info.ID == "" {
			return nil, fmt.Errorf("missing info.id")
		}
		return SessionDeleted{SessionID: p.Info.ID}, nil
	},
	LabelSessionStatus: func(data []byte) (DaemonEvent, error) {
		var p struct {
			SessionID string               `json:"sessionId"`
			Status    *types.SessionStatus `json:"status"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.SessionID == "" || p.Status == nil {
			return nil, fmt.Errorf("missing sessionId or status")
		}
		return SessionStatusChanged{SessionID: p.SessionID, Status: *p.Status}, nil
	},
	LabelMessageCreated: func(data []byte) (DaemonEvent, error) {
		m, err := decodeMessageInfo(data)
		return MessageCreated{Message: m}, err
	},
	LabelMessageUpdated: func(data []byte) (DaemonEvent, error) {
		m, err := decodeMessageInfo(data)
		return MessageUpdated{Message: m}, err
	},
	LabelMessageRemoved: func(data []byte) (DaemonEvent, error) {
		var p struct {
			SessionID string `json:"sessionId"`
			MessageID string `json:"messageId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.SessionID == "" || p.MessageID == "" {
			return nil, fmt.Errorf("missing sessionId or messageId")
		}
		return MessageRemoved{SessionID: p.SessionID, MessageID: p.MessageID}, nil
	},
	LabelPartUpdated: func(data []byte) (DaemonEvent, error) {
		var p struct {
			Part *types.Part `json:"part"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.Part == nil || p.Part.ID == "" || p.Part.MessageID == "" {
			return nil, fmt.Errorf("missing part, part.id or part.messageId")
		}
		return PartUpdated{Part: *p.Part}, nil
	},
	LabelPartRemoved: func(data []byte) (DaemonEvent, error) {
		var p struct {
			MessageID string `json:"messageId"`
			PartID    string `json:"partId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.MessageID == "" || p.PartID == "" {
			return nil, fmt.Errorf("missing messageId or partId")
		}
		return PartRemoved{MessageID: p.MessageID, PartID: p.PartID}, nil
	},
	LabelPermissionAsked: func(data []byte) (DaemonEvent, error) {
		var req types.PermissionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		if req.ID == "" || req.SessionID == "" || req.Permission == "" {
			return nil, fmt.Errorf("missing id, sessionId or permission")
		}
		return PermissionAsked{Request: req}, nil
	},
	LabelPermissionReplied: func(data []byte) (DaemonEvent, error) {
		sid, rid, err := decodeReply(data)
		return PermissionReplied{SessionID: sid, RequestID: rid}, err
	},
	LabelQuestionAsked: func(data []byte) (DaemonEvent, error) {
		var req types.QuestionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		if req.ID == "" || req.SessionID == "" || req.Questions == nil {
			return nil, fmt.Errorf("missing id, sessionId or questions")
		}
		return QuestionAsked{Request: req}, nil
	},
	LabelQuestionReplied: func(data []byte) (DaemonEvent, error) {
		sid, rid, err := decodeReply(data)
		return QuestionReplied{SessionID: sid, RequestID: rid}, err
	},
	LabelQuestionRejected: func(data []byte) (DaemonEvent, error) {
		sid, rid, err := decodeReply(data)
		return QuestionReplied{SessionID: sid, RequestID: rid, Rejected: true}, err
	},
	LabelConnectionStatus: func(data []byte) (DaemonEvent, error) {
		var p struct {
			Connected *bool `json:"connected"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.Connected == nil {
			return nil, fmt.Errorf("missing connected")
		}
		return ConnectionStatus{Connected: *p.Connected}, nil
	},
	LabelKeepalive: func([]byte) (DaemonEvent, error) {
		return Keepalive{}, nil
	},
}

// DecodeDaemonEvent parses the payload for the given label. It returns
// ErrUnknownLabel for labels outside the vocabulary.
func DecodeDaemonEvent(label string, data []byte) (DaemonEvent, error) {
	decode, ok := daemonDecoders[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLabel, label)
	}
	ev, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", label, err)
	}
	return ev, nil
}

// decodeSessionInfo accepts {"info": Session} and, as a fallback, a bare
// Session object.
func decodeSessionInfo(data []byte) (types.Session, error) {
	var wrapper struct {
		Info types.Session `json:"info"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Info.ID != "" {
		return wrapper.Info, nil
	}
	var bare types.Session
	if err := json.Unmarshal(data, &bare); err != nil {
		return types.Session{}, err
	}
	if bare.ID == "" {
		return types.Session{}, fmt.Errorf("missing session id")
	}
	return bare, nil
}

func decodeMessageInfo(data []byte) (types.Message, error) {
	var wrapper struct {
		Info *types.Message `json:"info"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return types.Message{}, err
	}
	if wrapper.Info == nil || wrapper.Info.ID == "" || wrapper.Info.SessionID == "" {
		return types.Message{}, fmt.Errorf("missing info, info.id or info.sessionId")
	}
	return *wrapper.Info, nil
}

func decodeReply(data []byte) (types.SessionID, types.RequestID, error) {
	var p struct {
		SessionID string `json:"sessionId"`
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return "", "", err
	}
	if p.SessionID == "" || p.RequestID == "" {
		return "", "", fmt.Errorf("missing sessionId or requestId")
	}
	return p.SessionID, p.RequestID, nil
}
