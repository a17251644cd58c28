package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-reconciliation-backend/internal/models"
)

func TestLogPosterRecordsRequest(t *testing.T) {
	log, hook := test.NewNullLogger()
	req := AdjustmentRequest{
		BatchID:       uuid.New(),
		BankAccountID: uuid.New(),
		Status:        models.BatchStatusInReview,
		Unreconciled:  4,
		RequestedBy:   "closer",
	}

	require.NoError(t, NewLogPoster(log).PostAdjustment(context.Background(), req))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "adjustment entry requested", entry.Message)
	assert.Equal(t, req.BatchID, entry.Data["batch_id"])
	assert.Equal(t, 4, entry.Data["unreconciled"])
}
