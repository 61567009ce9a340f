package models

import "time"

// Actor types
const (
	ActorUser   = "user"
	ActorAdmin  = "admin"
	ActorSystem = "system"
)

type AuditLog struct {
	ID              int64          `json:"id"`
	ActorExternalID *int64         `json:"actor_external_id,omitempty"`
	ActorType       string         `json:"actor_type"` // user/admin/system
	Action          string         `json:"action"`
	EntityType      string         `json:"entity_type"`
	EntityID        int64          `json:"entity_id"`
	Meta            map[string]any `json:"meta,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
