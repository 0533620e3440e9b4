package entities

import "time"

type AuditEventType string

const (
	AuditEventTocCheck  AuditEventType = "toc_check"
	AuditEventTocUpdate AuditEventType = "toc_update"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusPartial AuditStatus = "partial"
	AuditStatusFailed  AuditStatus = "failed"
)

type AuditEvent struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	EventType     AuditEventType `gorm:"index;size:50" json:"event_type"`
	Action        string         `gorm:"size:100" json:"action"`      // e.g., "toc_status", "toc_rebuild"
	Description   string         `gorm:"size:500" json:"description"` // Human-readable summary
	EntityType    string         `gorm:"size:50" json:"entity_type"`  // "book" or "batch"
	EntityID      *uint          `gorm:"index" json:"entity_id,omitempty"`
	BookContentID string         `gorm:"index;size:1024" json:"book_content_id,omitempty"`
	Metadata      string         `gorm:"type:text" json:"metadata,omitempty"` // JSON for extra data
	Status        AuditStatus    `gorm:"size:20" json:"status"`
	ErrorMsg      string         `gorm:"size:500" json:"error_msg,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
