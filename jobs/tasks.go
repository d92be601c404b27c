package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans ledger entries and stock reservations for drift.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskAuditCleanup prunes audit_logs past retention.
	TaskAuditCleanup = "audit:cleanup"
)

// LedgerIntegrityPayload scopes an integrity scan. BusinessID 0 scans every business.
type LedgerIntegrityPayload struct {
	RunID      string `json:"run_id"`
	BusinessID int64  `json:"business_id,omitempty"`
}

// AuditCleanupPayload configures audit retention.
type AuditCleanupPayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewLedgerIntegrityTask creates an integrity scan task tagged with a run id.
// Cron re-enqueues the same task, so scheduled runs share it and are told
// apart by task id.
func NewLedgerIntegrityTask(businessID int64) (*asynq.Task, error) {
	if businessID < 0 {
		return nil, fmt.Errorf("business id must not be negative")
	}
	body, err := json.Marshal(LedgerIntegrityPayload{RunID: uuid.NewString(), BusinessID: businessID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

// NewAuditCleanupTask creates an audit cleanup task.
func NewAuditCleanupTask(retentionDays int) (*asynq.Task, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	body, err := json.Marshal(AuditCleanupPayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditCleanup, body, asynq.Queue(QueueDefault)), nil
}
