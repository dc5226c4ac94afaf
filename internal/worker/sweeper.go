package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nimbusdesk/backend/internal/consistency"
	"github.com/nimbusdesk/backend/internal/projection"
	"github.com/nimbusdesk/backend/pkg/queue"
	"github.com/nimbusdesk/backend/pkg/storage"
)

// sweepCursorKey holds the last principal id processed by an in-progress
// sweep, so an interrupted sweep resumes instead of restarting.
const sweepCursorKey = "sweep:cursor"

// Sweeper runs consistency jobs: full-population drift sweeps and batch
// violation scans. Finished reports are archived to S3 when configured.
type Sweeper struct {
	guardian  *projection.Guardian
	validator *consistency.Validator
	queue     *queue.Queue
	rdb       *redis.Client
	s3        *storage.S3
	pageSize  int
	logger    *zap.Logger
}

// NewSweeper creates a sweep/scan processor. s3 may be nil; reports are then
// logged but not archived.
func NewSweeper(guardian *projection.Guardian, validator *consistency.Validator,
	q *queue.Queue, rdb *redis.Client, s3 *storage.S3, pageSize int, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Sweeper{
		guardian:  guardian,
		validator: validator,
		queue:     q,
		rdb:       rdb,
		s3:        s3,
		pageSize:  pageSize,
		logger:    logger,
	}
}

// Run consumes queue jobs until ctx is done. Failed jobs are retried via
// the queue's retry/DLQ policy.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		job, err := s.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("dequeue failed", zap.Error(err))
			time.Sleep(2 * time.Second)
			continue
		}
		if job == nil {
			continue
		}
		if err := s.Process(ctx, job); err != nil {
			s.logger.Error("job failed", zap.Error(err), zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
			_ = s.queue.Retry(ctx, job)
		}
	}
}

// RunScheduled triggers a drift sweep on the given interval until ctx is
// done. Sweeps are idempotent per principal, so an overlap with a queued
// sweep converges rather than conflicts.
func (s *Sweeper) RunScheduled(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runDriftSweep(ctx, uuid.New().String()); err != nil {
				s.logger.Error("scheduled sweep failed", zap.Error(err))
			}
		}
	}
}

// Process executes one job.
func (s *Sweeper) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeDriftSweep:
		return s.runDriftSweep(ctx, job.ID)
	case queue.JobTypeViolationScan:
		var payload queue.ViolationScanPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return s.runViolationScan(ctx, job.ID, payload)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// sweepReport is the archived outcome of one drift sweep.
type sweepReport struct {
	JobID      string                   `json:"job_id"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Principals int                      `json:"principals_checked"`
	Reports    []projection.DriftReport `json:"drift_reports"`
	Repairs    []projection.RepairResult `json:"repairs"`
}

func (s *Sweeper) runDriftSweep(ctx context.Context, jobID string) error {
	started := time.Now().UTC()
	report := sweepReport{JobID: jobID, StartedAt: started}

	cursor, err := s.loadCursor(ctx)
	if err != nil {
		s.logger.Warn("sweep cursor unreadable, starting from the beginning", zap.Error(err))
		cursor = uuid.Nil
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reports, repairs, last, n, err := s.guardian.SweepPage(ctx, cursor, s.pageSize)
		if err != nil {
			return fmt.Errorf("sweep page after %s: %w", cursor, err)
		}
		report.Principals += n
		report.Reports = append(report.Reports, reports...)
		report.Repairs = append(report.Repairs, repairs...)
		if n == 0 {
			break
		}
		cursor = last
		if err := s.saveCursor(ctx, cursor); err != nil {
			s.logger.Warn("sweep cursor save failed", zap.Error(err))
		}
	}
	s.clearCursor(ctx)

	report.FinishedAt = time.Now().UTC()
	s.logger.Info("drift sweep finished",
		zap.String("job_id", jobID),
		zap.Int("principals", report.Principals),
		zap.Int("drift_reports", len(report.Reports)),
		zap.Int("repairs", len(report.Repairs)))
	return s.archive(ctx, string(queue.JobTypeDriftSweep), jobID, started, report)
}

// scanReport is the archived outcome of one violation scan.
type scanReport struct {
	JobID      string               `json:"job_id"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Violations []consistency.Result `json:"violations"`
}

func (s *Sweeper) runViolationScan(ctx context.Context, jobID string, payload queue.ViolationScanPayload) error {
	started := time.Now().UTC()
	violations, err := s.validator.ScanForViolations(ctx, consistency.ScanScope{
		From:       payload.From,
		To:         payload.To,
		ContextIDs: payload.ContextIDs,
	})
	if err != nil {
		return fmt.Errorf("violation scan: %w", err)
	}
	report := scanReport{
		JobID:      jobID,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Violations: violations,
	}
	s.logger.Info("violation scan finished",
		zap.String("job_id", jobID),
		zap.Int("violations", len(violations)))
	return s.archive(ctx, string(queue.JobTypeViolationScan), jobID, started, report)
}

func (s *Sweeper) archive(ctx context.Context, kind, jobID string, at time.Time, report interface{}) error {
	if s.s3 == nil {
		s.logger.Warn("report archive not configured, skipping upload", zap.String("job_id", jobID))
		return nil
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	key := storage.ReportKey(kind, jobID, at)
	if _, err := s.s3.UploadReport(ctx, key, body); err != nil {
		return err
	}
	return nil
}

func (s *Sweeper) loadCursor(ctx context.Context) (uuid.UUID, error) {
	val, err := s.rdb.Get(ctx, sweepCursorKey).Result()
	if err == redis.Nil {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(val)
}

func (s *Sweeper) saveCursor(ctx context.Context, cursor uuid.UUID) error {
	return s.rdb.Set(ctx, sweepCursorKey, cursor.String(), 24*time.Hour).Err()
}

func (s *Sweeper) clearCursor(ctx context.Context) {
	if err := s.rdb.Del(ctx, sweepCursorKey).Err(); err != nil {
		s.logger.Warn("sweep cursor clear failed", zap.Error(err))
	}
}
