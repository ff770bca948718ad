// Package audit records domain events and serves the recent trail to admins.
package audit

import (
	"encoding/json"
	"time"

	auditDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/audit"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type Entry struct {
	ID         int64                  `json:"id"`
	ActorID    string                 `json:"actorId"`
	Action     string                 `json:"action"`
	TargetType string                 `json:"targetType"`
	TargetID   string                 `json:"targetId"`
	Details    map[string]interface{} `json:"details"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// FromDataModel decodes the stored details; unreadable JSON is returned raw.
func FromDataModel(e *auditDatamodel.Entry) *Entry {
	out := &Entry{
		ID:         e.ID,
		ActorID:    e.ActorID,
		Action:     e.Action,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		CreatedAt:  e.CreatedAt,
	}
	if e.Details != "" {
		if err := json.Unmarshal([]byte(e.Details), &out.Details); err != nil {
			out.Details = map[string]interface{}{"raw": e.Details}
		}
	}
	return out
}
