package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/logger"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/services/matching"
)

type AutoMatchConfig struct {
	// Schedule is a standard five-field cron expression. Empty disables the job.
	Schedule string
	TimeZone string
	// Timeout bounds a single run.
	Timeout time.Duration
}

func NewDefaultAutoMatchConfig() AutoMatchConfig {
	return AutoMatchConfig{
		Schedule: "",
		TimeZone: "UTC",
		Timeout:  30 * time.Minute,
	}
}

// BatchMatcher is the part of the match engine the job drives.
type BatchMatcher interface {
	AutoMatchBatch(ctx context.Context, batchID uuid.UUID) (matching.AutoMatchSummary, error)
}

// AutoMatchJob runs auto-matching over every batch that is not COMPLETED.
type AutoMatchJob struct {
	batches *repository.BatchRepository
	matcher BatchMatcher
	log     logrus.FieldLogger
}

func NewAutoMatchJob(db *gorm.DB, matcher BatchMatcher, log logrus.FieldLogger) *AutoMatchJob {
	return &AutoMatchJob{
		batches: repository.NewBatchRepository(db),
		matcher: matcher,
		log:     logger.Component(log, "auto-match-job"),
	}
}

// RunOnce matches all unfinished batches and returns the combined summary.
// A failing batch is logged and the run moves on to the next one.
func (j *AutoMatchJob) RunOnce(ctx context.Context) (matching.AutoMatchSummary, error) {
	var total matching.AutoMatchSummary
	batches, err := j.batches.ListUnfinished(ctx)
	if err != nil {
		return total, fmt.Errorf("list unfinished batches: %w", err)
	}

	failed := 0
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		s, err := j.matcher.AutoMatchBatch(ctx, b.ID)
		if err != nil {
			failed++
			j.log.WithError(err).WithField("batch_id", b.ID).Error("auto-match failed")
			continue
		}
		total.Exact += s.Exact
		total.Approximate += s.Approximate
		total.Unmatched += s.Unmatched
		total.Skipped += s.Skipped
	}

	j.log.WithFields(logrus.Fields{
		"batches":     len(batches),
		"failed":      failed,
		"exact":       total.Exact,
		"approximate": total.Approximate,
	}).Info("auto-match run finished")
	return total, nil
}

// StartAutoMatchScheduler registers the job with a cron scheduler and starts
// it. It returns nil when no schedule is configured. Callers stop the returned
// scheduler on shutdown.
func StartAutoMatchScheduler(cfg AutoMatchConfig, job *AutoMatchJob) (*cron.Cron, error) {
	if cfg.Schedule == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.TimeZone, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = NewDefaultAutoMatchConfig().Timeout
	}

	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = c.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := job.RunOnce(ctx); err != nil {
			job.log.WithError(err).Error("auto-match run aborted")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	c.Start()
	job.log.WithFields(logrus.Fields{
		"schedule": cfg.Schedule,
		"timezone": loc.String(),
	}).Info("auto-match scheduler started")
	return c, nil
}
