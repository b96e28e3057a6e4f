package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campus-events/backend/internal/notify"
	"github.com/campus-events/backend/pkg/mailer"
	"github.com/campus-events/backend/pkg/queue"
)

// NotificationProcessor delivers queued notifications over email and records
// the outcome on the notification_logs row.
type NotificationProcessor struct {
	logs   *notify.Repository
	mailer *mailer.Mailer
	queue  *queue.Queue
	logger *zap.Logger
}

// NewNotificationProcessor creates a notification delivery processor.
func NewNotificationProcessor(logs *notify.Repository, m *mailer.Mailer, q *queue.Queue, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{logs: logs, mailer: m, queue: q, logger: logger}
}

// Process executes one notification job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeNotification {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := p.mailer.Send([]string{payload.RecipientEmail}, payload.Subject, payload.BodyHTML); err != nil {
		if payload.LogID != 0 {
			if logErr := p.logs.MarkFailed(ctx, payload.LogID, err.Error()); logErr != nil {
				p.logger.Error("mark notification failed errored", zap.Error(logErr), zap.Int64("log_id", payload.LogID))
			}
		}
		return fmt.Errorf("send email: %w", err)
	}

	if payload.LogID != 0 {
		if err := p.logs.MarkSent(ctx, payload.LogID); err != nil {
			p.logger.Error("mark notification sent errored", zap.Error(err), zap.Int64("log_id", payload.LogID))
		}
	}
	p.logger.Info("notification delivered",
		zap.String("kind", payload.Kind), zap.String("recipient", payload.RecipientEmail))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("notification worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
