package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AuditAction string

const (
	AuditLinesImported  AuditAction = "LINES_IMPORTED"
	AuditMatchCreated   AuditAction = "MATCH_CREATED"
	AuditMatchApproved  AuditAction = "MATCH_APPROVED"
	AuditMatchRejected  AuditAction = "MATCH_REJECTED"
	AuditBatchCompleted AuditAction = "BATCH_COMPLETED"
)

type MatchAuditLog struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey"`
	BatchID         uuid.UUID   `gorm:"type:uuid;index"`
	StatementLineID *uuid.UUID  `gorm:"type:uuid;index"`
	MatchID         *uuid.UUID  `gorm:"type:uuid"`
	Action          AuditAction `gorm:"size:32;index"`
	MatchType       MatchType   `gorm:"size:24"`
	TargetType      TargetType  `gorm:"size:16"`
	TargetID        *uuid.UUID  `gorm:"type:uuid"`
	PerformedBy     string
	Payload         datatypes.JSON
	CreatedAt       time.Time
}
