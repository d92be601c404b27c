package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/backoffice-billing/internal/jobs"
)

// AuditCleaner prunes audit records.
type AuditCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// AuditCleanupJob removes audit_logs rows past retention.
type AuditCleanupJob struct {
	Cleaner AuditCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditCleanupJob constructs the job handler.
func NewAuditCleanupJob(cleaner AuditCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditCleanupJob {
	return &AuditCleanupJob{Cleaner: cleaner, Logger: logger, Metrics: metrics}
}

// Handle executes the cleanup.
func (j *AuditCleanupJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Cleaner == nil {
		return errors.New("audit cleanup: dependencies not configured")
	}
	var payload AuditCleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.RetentionDays <= 0 {
		return asynq.SkipRetry
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskAuditCleanup)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	removed, err := j.Cleaner.Cleanup(ctx, time.Duration(payload.RetentionDays)*24*time.Hour)
	if err != nil {
		logger.Error("audit cleanup", slog.String("job", TaskAuditCleanup), slog.Any("error", err))
		return err
	}
	logger.Info("audit cleanup completed", slog.String("job", TaskAuditCleanup), slog.Int64("removed", removed))
	return nil
}
