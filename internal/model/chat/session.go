package chat

import (
	"time"

	"github.com/zhouzirui/spirit/backend/internal/model/persona"
)

// Snapshot is a read-only view of a conversation handed to the presentation layer.
type Snapshot struct {
	ID            string         `json:"id"`
	Persona       persona.Config `json:"persona"`
	Messages      []Message      `json:"messages"`
	SessionActive bool           `json:"sessionActive"`
	Busy          bool           `json:"busy"`
	CreatedAt     time.Time      `json:"createdAt"`
}
