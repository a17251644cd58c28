package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/config"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/services/importer"
	"bank-reconciliation-backend/internal/services/matching"
	"bank-reconciliation-backend/internal/services/reconciliation"
	"bank-reconciliation-backend/internal/testutil"
)

func useDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutil.OpenDB(t)
	prev := openDB
	openDB = func(*config.Config) (*gorm.DB, error) { return db, nil }
	t.Cleanup(func() { openDB = prev })
	return db
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "valid.csv")
	require.NoError(t, os.WriteFile(validFile, []byte("test"), 0644))

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{name: "valid file", filePath: validFile},
		{name: "empty path", filePath: "", expectError: true},
		{name: "non-existent file", filePath: "/non/existent/file.csv", expectError: true},
		{name: "directory instead of file", filePath: tmpDir, expectError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "statement file")
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestImportAutoMatchAndComplete(t *testing.T) {
	db := useDB(t)
	account := uuid.New()
	file := filepath.Join(t.TempDir(), "jan.csv")
	require.NoError(t, os.WriteFile(file, []byte(
		"date,description,reference,amount,type\n"+
			"2024-01-05,ACME LTD INVOICE 7,INV-7,1200.00,CR\n"+
			"2024-01-09,CARD PURCHASE,,89.90,DR\n"), 0644))

	out, err := run(t, "import", "--account", account.String(), "--file", file, "--batch", "")
	require.NoError(t, err)
	var result importer.ImportResult
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Equal(t, 2, result.Imported)

	out, err = run(t, "import", "--account", account.String(), "--file", file, "--batch", "")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 2, result.Duplicates)

	testutil.SeedPayment(t, db, "1200.00", testutil.Day(2024, 1, 5), models.PaymentStatusApproved)

	out, err = run(t, "auto-match", "--batch", result.BatchID.String())
	require.NoError(t, err)
	var summary matching.AutoMatchSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary), out)
	assert.Equal(t, matching.AutoMatchSummary{Exact: 1, Unmatched: 1}, summary)

	out, err = run(t, "complete", "--batch", result.BatchID.String(), "--adjustment")
	require.NoError(t, err)
	var batch models.ReconciliationBatch
	require.NoError(t, json.Unmarshal([]byte(out), &batch), out)
	assert.Equal(t, models.BatchStatusInReview, batch.Status)
	assert.Equal(t, 1, batch.TotalUnreconciled)

	out, err = run(t, "verify", "--batch", result.BatchID.String())
	require.NoError(t, err)
	var report reconciliation.CounterReport
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.True(t, report.Consistent)

	var logged int64
	require.NoError(t, db.Model(&models.MatchAuditLog{}).Count(&logged).Error)
	assert.Positive(t, logged)
}

func TestCommandsRejectBadFlags(t *testing.T) {
	useDB(t)

	_, err := run(t, "import", "--account", "nope", "--file", "x.csv", "--batch", "")
	assert.ErrorContains(t, err, "invalid --account")

	_, err = run(t, "auto-match", "--batch", "nope")
	assert.ErrorContains(t, err, "invalid --batch")

	_, err = run(t, "verify", "--batch", uuid.NewString())
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	useDB(t)
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migration complete")
}
