package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

// Event describes a committed state change.
type Event struct {
	Action          models.AuditAction
	BatchID         uuid.UUID
	StatementLineID *uuid.UUID
	MatchID         *uuid.UUID
	MatchType       models.MatchType
	Target          *models.Target
	Actor           string
	Payload         map[string]interface{}
	At              time.Time
}

// Sink receives events after the transaction that produced them has
// committed. A failing sink never undoes the operation.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Emit delivers e to sink and logs a failure instead of returning it.
func Emit(ctx context.Context, sink Sink, log logrus.FieldLogger, e Event) {
	if sink == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := sink.Record(ctx, e); err != nil && log != nil {
		log.WithError(err).
			WithFields(logrus.Fields{"action": e.Action, "batch_id": e.BatchID}).
			Warn("audit event not recorded")
	}
}

// GormSink stores events in the match_audit_logs table.
type GormSink struct {
	db *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

func (s *GormSink) Record(ctx context.Context, e Event) error {
	entry := models.MatchAuditLog{
		ID:              uuid.New(),
		BatchID:         e.BatchID,
		StatementLineID: e.StatementLineID,
		MatchID:         e.MatchID,
		Action:          e.Action,
		MatchType:       e.MatchType,
		PerformedBy:     e.Actor,
		CreatedAt:       e.At,
	}
	if e.Target != nil {
		id := e.Target.ID
		entry.TargetType = e.Target.Type
		entry.TargetID = &id
	}
	if len(e.Payload) > 0 {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return err
		}
		entry.Payload = datatypes.JSON(raw)
	}
	return s.db.WithContext(ctx).Create(&entry).Error
}

// LogSink writes events to the structured log.
type LogSink struct {
	log logrus.FieldLogger
}

func NewLogSink(log logrus.FieldLogger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Record(_ context.Context, e Event) error {
	fields := logrus.Fields{
		"action":   e.Action,
		"batch_id": e.BatchID,
		"actor":    e.Actor,
	}
	if e.StatementLineID != nil {
		fields["statement_line_id"] = *e.StatementLineID
	}
	if e.MatchID != nil {
		fields["match_id"] = *e.MatchID
	}
	if e.MatchType != "" {
		fields["match_type"] = e.MatchType
	}
	for k, v := range e.Payload {
		fields[k] = v
	}
	s.log.WithFields(fields).Info("audit")
	return nil
}

// Multi fans an event out to several sinks. Every sink is tried; the first
// error is returned.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Event) error {
	var first error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps events in memory.
type Recorder struct {
	Events []Event
	Err    error
}

func (r *Recorder) Record(_ context.Context, e Event) error {
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, e)
	return nil
}

func (r *Recorder) Actions() []models.AuditAction {
	out := make([]models.AuditAction, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Action)
	}
	return out
}
