// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type SessionID = string
type MessageID = string
type PartID = string
type RequestID = string

// NewStreamID returns a placeholder id for a message that is still being
// generated. The daemon assigns the real id once the message is committed.
func NewStreamID() MessageID {
	return "stream-" + uuid.New().String()
}
