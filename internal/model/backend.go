package model

import (
	"fmt"
	"strings"
	"time"
)

// PendingOp records which local mutation still has to be pushed upstream.
type PendingOp string

const (
	PendingNone   PendingOp = ""
	PendingCreate PendingOp = "create"
	PendingUpdate PendingOp = "update"
	PendingDelete PendingOp = "delete"
)

// IsValid reports whether op is one of the known pending states.
func (op PendingOp) IsValid() bool {
	switch op {
	case PendingNone, PendingCreate, PendingUpdate, PendingDelete:
		return true
	}
	return false
}

// String returns "synced" for PendingNone so the value reads well in logs.
func (op PendingOp) String() string {
	if op == PendingNone {
		return "synced"
	}
	return string(op)
}

// Backend is a configured account on a remote task service.
// It owns every other entity; deleting it removes all of them.
type Backend struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // registry key, e.g. "todoist", "googletasks"
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`

	// Credentials and Settings are opaque to everything but the remote
	// client registered for Type.
	Credentials []byte `json:"-"`
	Settings    []byte `json:"settings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the fields required to persist a backend.
func (b *Backend) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(b.Type) == "" {
		return fmt.Errorf("type is required")
	}
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}
