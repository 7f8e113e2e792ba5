package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem  ActorType = "system"
	ActorTypeAdmin   ActorType = "admin"
	ActorTypeBilling ActorType = "billing"
	ActorTypePublic  ActorType = "public"
)

const (
	ActionProjectCreated     = "project.created"
	ActionSignupsExported    = "signups.exported"
	ActionBillingPlanChanged = "billing.plan_changed"
)

const (
	TargetProject = "project"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ProjectID  *snowflake.ID     `gorm:"index:idx_audit_logs_project,priority:1" json:"projectId,omitempty"`
	ActorType  string            `gorm:"type:text;not null" json:"actorType"`
	ActorID    *string           `gorm:"type:text" json:"actorId,omitempty"`
	Action     string            `gorm:"type:text;not null" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"targetType"`
	TargetID   *string           `gorm:"type:text" json:"targetId,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	IPAddress  *string           `gorm:"type:text" json:"ipAddress,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:idx_audit_logs_project,priority:2" json:"createdAt"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is one action to record. Empty actor fields fall back to the actor
// carried on the context.
type Entry struct {
	ProjectID  *snowflake.ID
	ActorType  ActorType
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListFilter struct {
	ProjectID snowflake.ID
	Action    string
	Offset    int
	Limit     int
}
