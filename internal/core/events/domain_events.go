package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRoleChanged    = "user.role_changed"
	EventTypeGrantUpserted  = "grant.upserted"
	EventTypeGrantRevoked   = "grant.revoked"
	EventTypeClientDeleted  = "client.deleted"
	EventTypeReportDeleted  = "report.deleted"
	EventTypeFindingDeleted = "finding.deleted"
	EventTypeUploadsRemoved = "uploads.removed"
)

// AllAuditable lists the event types persisted to the audit log.
var AllAuditable = []string{
	EventTypeRoleChanged,
	EventTypeGrantUpserted,
	EventTypeGrantRevoked,
	EventTypeClientDeleted,
	EventTypeReportDeleted,
	EventTypeFindingDeleted,
}

// DomainEvent is an audited state change. TargetType/TargetID identify the
// entity; Data carries the change itself.
type DomainEvent struct {
	BaseEvent
	ActorID    string `json:"actor_id"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
}

func NewDomainEvent(eventType, actorID, targetType, targetID string, data map[string]interface{}) *DomainEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &DomainEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      data,
		},
		ActorID:    actorID,
		TargetType: targetType,
		TargetID:   targetID,
	}
}

// UploadsRemovedEvent lists storage keys whose rows were deleted and whose
// blobs must now be purged.
type UploadsRemovedEvent struct {
	BaseEvent
	Keys []string `json:"keys"`
}

func NewUploadsRemovedEvent(keys []string) *UploadsRemovedEvent {
	return &UploadsRemovedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      EventTypeUploadsRemoved,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"count": len(keys)},
		},
		Keys: keys,
	}
}
