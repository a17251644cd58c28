package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/testutil"
)

func TestGormSinkPersistsEvent(t *testing.T) {
	db := testutil.OpenDB(t)
	sink := NewGormSink(db)

	lineID, matchID := uuid.New(), uuid.New()
	target, err := models.PaymentTarget(uuid.New())
	require.NoError(t, err)

	err = sink.Record(context.Background(), Event{
		Action:          models.AuditMatchCreated,
		BatchID:         uuid.New(),
		StatementLineID: &lineID,
		MatchID:         &matchID,
		MatchType:       models.MatchTypeManual,
		Target:          &target,
		Actor:           "alice",
		Payload:         map[string]interface{}{"confidence": "100"},
	})
	require.NoError(t, err)

	var logs []models.MatchAuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditMatchCreated, logs[0].Action)
	assert.Equal(t, models.TargetPayment, logs[0].TargetType)
	assert.Equal(t, target.ID, *logs[0].TargetID)
	assert.Equal(t, "alice", logs[0].PerformedBy)
	assert.JSONEq(t, `{"confidence":"100"}`, string(logs[0].Payload))
}

func TestEmitLogsSinkFailure(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)

	Emit(context.Background(), &Recorder{Err: errors.New("sink down")}, log, Event{
		Action:  models.AuditMatchApproved,
		BatchID: uuid.New(),
	})
	assert.Contains(t, buf.String(), "audit event not recorded")
	assert.Contains(t, buf.String(), "sink down")

	Emit(context.Background(), nil, log, Event{})
}

func TestMultiTriesEverySink(t *testing.T) {
	failing := &Recorder{Err: errors.New("boom")}
	ok := &Recorder{}

	err := Multi{failing, ok}.Record(context.Background(), Event{Action: models.AuditMatchRejected})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []models.AuditAction{models.AuditMatchRejected}, ok.Actions())
}
