// Package gojob runs the guard's maintenance work through go-job queues:
// the recurring expired-claim purge and operator-requested replays of
// failed attempts. The queue enqueues; the worker drains deliveries and
// maps each job id onto the matching guard command.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocmd "github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"

	guardcmd "github.com/goliatone/go-webhook-guard/command"
)

const (
	JobIDClaimPurge    = "webhookguard.claims.purge"
	JobIDAttemptReplay = "webhookguard.attempt.replay"
)

const paramAttemptID = "attempt_id"

// MaintenanceQueue enqueues guard maintenance jobs.
type MaintenanceQueue struct {
	enqueuer queue.Enqueuer
}

func NewMaintenanceQueue(enqueuer queue.Enqueuer) (*MaintenanceQueue, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	return &MaintenanceQueue{enqueuer: enqueuer}, nil
}

// EnqueueClaimPurge schedules one purge run. The idempotency key folds in
// the scheduling instant so queues with dedup enabled collapse
// double-enqueues of the same tick.
func (q *MaintenanceQueue) EnqueueClaimPurge(ctx context.Context, tick time.Time) error {
	if q == nil || q.enqueuer == nil {
		return fmt.Errorf("gojob: maintenance queue is not configured")
	}
	_, err := q.enqueuer.Enqueue(ctx, &job.ExecutionMessage{
		JobID:          JobIDClaimPurge,
		IdempotencyKey: fmt.Sprintf("%s:%d", JobIDClaimPurge, tick.UTC().Unix()),
	})
	return err
}

// EnqueueAttemptReplay queues a replay of one failed attempt.
func (q *MaintenanceQueue) EnqueueAttemptReplay(ctx context.Context, attemptID string) error {
	if q == nil || q.enqueuer == nil {
		return fmt.Errorf("gojob: maintenance queue is not configured")
	}
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return fmt.Errorf("gojob: attempt id is required")
	}
	_, err := q.enqueuer.Enqueue(ctx, &job.ExecutionMessage{
		JobID:          JobIDAttemptReplay,
		IdempotencyKey: JobIDAttemptReplay + ":" + attemptID,
		Parameters:     map[string]any{paramAttemptID: attemptID},
	})
	return err
}

// RetryPolicy bounds redelivery of failed maintenance jobs.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

const defaultMaxAttempts = 3

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return defaultMaxAttempts
}

// Worker drains the maintenance queue and executes the guard command each
// job id names. Failures are requeued with the policy's delay until the
// attempt cap, then dead-lettered so a persistently failing replay does
// not loop forever.
type Worker struct {
	dequeuer queue.Dequeuer
	purge    gocmd.Commander[guardcmd.PurgeClaimsMessage]
	replay   gocmd.Commander[guardcmd.ReplayAttemptMessage]

	Policy RetryPolicy
	Logger glog.Logger

	mu       sync.Mutex
	failures map[string]int
}

func NewWorker(
	dequeuer queue.Dequeuer,
	purge gocmd.Commander[guardcmd.PurgeClaimsMessage],
	replay gocmd.Commander[guardcmd.ReplayAttemptMessage],
) (*Worker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if purge == nil || replay == nil {
		return nil, fmt.Errorf("gojob: purge and replay commands are required")
	}
	return &Worker{
		dequeuer: dequeuer,
		purge:    purge,
		replay:   replay,
		failures: map[string]int{},
	}, nil
}

// HandleNext takes one delivery off the queue and resolves it to an ack or
// a nack. Unknown job ids are dead-lettered immediately; retrying cannot
// make them known.
func (w *Worker) HandleNext(ctx context.Context) error {
	if w == nil || w.dequeuer == nil {
		return fmt.Errorf("gojob: worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      "gojob: delivery carried no message",
		})
	}

	var execErr error
	switch msg.JobID {
	case JobIDClaimPurge:
		execErr = w.purge.Execute(ctx, guardcmd.PurgeClaimsMessage{})
	case JobIDAttemptReplay:
		attemptID, _ := msg.Parameters[paramAttemptID].(string)
		execErr = w.replay.Execute(ctx, guardcmd.ReplayAttemptMessage{AttemptID: attemptID})
	default:
		return delivery.Nack(ctx, queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      fmt.Sprintf("gojob: unknown maintenance job %q", msg.JobID),
		})
	}

	key := failureKey(msg)
	if execErr == nil {
		w.clearFailures(key)
		return delivery.Ack(ctx)
	}

	attempt := w.recordFailure(key)
	w.logFailure(ctx, msg.JobID, attempt, execErr)
	if attempt >= w.Policy.maxAttempts() {
		w.clearFailures(key)
		return delivery.Nack(ctx, queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      execErr.Error(),
		})
	}
	return delivery.Nack(ctx, queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       w.Policy.Delay,
		Reason:      execErr.Error(),
	})
}

// Run drains the queue until the context ends or the queue fails.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.HandleNext(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func failureKey(msg *job.ExecutionMessage) string {
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID)
}

func (w *Worker) recordFailure(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[key]++
	return w.failures[key]
}

func (w *Worker) clearFailures(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.failures, key)
}

func (w *Worker) logFailure(ctx context.Context, jobID string, attempt int, cause error) {
	if w.Logger == nil {
		return
	}
	logger := w.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error("maintenance job failed",
		"job_id", jobID,
		"attempt", attempt,
		"error", cause.Error(),
	)
}

// JobLogger adapts the guard's logger for go-job components a host wires
// around this queue, such as schedulers and queue drivers.
func JobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// JobLoggerProvider is the provider-shaped counterpart of JobLogger.
func JobLoggerProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}
