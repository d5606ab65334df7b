// Package dispatch runs outbound email as tracked background tasks. Callers
// enqueue a task and return immediately; every task ends in exactly one
// audit entry (email_sent or email_failed), including tasks abandoned at
// shutdown.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/bindery/internal/audit"
	"github.com/mattjoyce/bindery/internal/log"
	"github.com/mattjoyce/bindery/internal/mail"
	"github.com/mattjoyce/bindery/internal/metrics"
	"github.com/mattjoyce/bindery/internal/store"
)

const (
	// queueDepth bounds pending email tasks. Enqueue blocks once full,
	// applying backpressure to the HTTP handlers.
	queueDepth = 64

	// sendTimeout caps one SMTP conversation.
	sendTimeout = 30 * time.Second
)

// Task is one email send with the audit notes to record on completion.
type Task struct {
	ID      string
	OrderID int64
	Message mail.Message

	// SuccessNote is the audit message recorded when the send succeeds.
	// FailurePrefix is prepended to the send error on failure.
	SuccessNote   string
	FailurePrefix string
}

// Dispatcher processes email tasks serially off an in-memory queue.
type Dispatcher struct {
	mailer mail.Mailer
	audit  *audit.Log
	tasks  chan Task
	logger *slog.Logger
}

// New creates a dispatcher. Call Start to begin processing.
func New(mailer mail.Mailer, auditLog *audit.Log) *Dispatcher {
	return &Dispatcher{
		mailer: mailer,
		audit:  auditLog,
		tasks:  make(chan Task, queueDepth),
		logger: log.WithComponent("dispatch"),
	}
}

// Enqueue registers an email task and returns its id. Blocks only when the
// queue is full.
func (d *Dispatcher) Enqueue(task Task) string {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	d.tasks <- task
	d.logger.Debug("email task queued", "task_id", task.ID, "order_id", task.OrderID, "to", task.Message.To)
	return task.ID
}

// Deliver sends a task inline, recording the same audit and metrics as the
// background loop. Used where the caller must know the outcome was audited
// before it responds.
func (d *Dispatcher) Deliver(ctx context.Context, task Task) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	d.process(ctx, task)
}

// Start runs the task loop until ctx is cancelled. This is a blocking call.
// On shutdown, tasks still queued are recorded as email_failed so no task
// disappears without an audit entry.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("email dispatch loop started")
	defer d.logger.Info("email dispatch loop stopped")

	for {
		// Cancellation wins over queued work: once ctx is done no further
		// task may be processed, only drained.
		if err := ctx.Err(); err != nil {
			d.drainAbandoned()
			return err
		}
		select {
		case <-ctx.Done():
			d.drainAbandoned()
			return ctx.Err()
		case task := <-d.tasks:
			d.process(ctx, task)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, task Task) {
	taskLogger := d.logger.With("task_id", task.ID, "order_id", task.OrderID)

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := d.mailer.Send(sendCtx, task.Message); err != nil {
		taskLogger.Error("email send failed", "error", err)
		metrics.EmailsFailedTotal.Inc()
		d.audit.RecordOrder(context.WithoutCancel(ctx), store.EventEmailFailed, task.OrderID,
			fmt.Sprintf("%s: %v", task.FailurePrefix, err))
		return
	}

	taskLogger.Info("email sent", "to", task.Message.To)
	metrics.EmailsSentTotal.Inc()
	d.audit.RecordOrder(context.WithoutCancel(ctx), store.EventEmailSent, task.OrderID, task.SuccessNote)
}

// drainAbandoned records an email_failed entry for every task that was
// queued but never processed.
func (d *Dispatcher) drainAbandoned() {
	for {
		select {
		case task := <-d.tasks:
			metrics.EmailsFailedTotal.Inc()
			d.audit.RecordOrder(context.Background(), store.EventEmailFailed, task.OrderID,
				fmt.Sprintf("%s: abandoned at shutdown", task.FailurePrefix))
		default:
			return
		}
	}
}
