package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"eventqueue/internal/metrics"
	"eventqueue/internal/queue"
)

// DefaultMaxAttempts bounds deliveries of one job, the first included.
const DefaultMaxAttempts = 3

// Worker drains queue_called jobs and delivers them with a Dispatcher.
// Retryable failures are re-published with a higher attempt count.
type Worker struct {
	q           queue.Queue
	d           Dispatcher
	log         *zap.Logger
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

// NewWorker creates a worker.
func NewWorker(q queue.Queue, d Dispatcher, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		q:           q,
		d:           d,
		log:         logger.Named("worker"),
		maxAttempts: DefaultMaxAttempts,
		backoff:     func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
	}
}

// Run consumes until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.q.Consume(ctx)
	if err != nil {
		return err
	}
	w.log.Info("worker started, waiting for messages")
	for msg := range messages {
		w.handle(ctx, msg)
	}
	w.log.Info("worker stopped")
	return nil
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	call, err := Decode(msg)
	if err != nil {
		metrics.WorkerJobs.WithLabelValues("dropped").Inc()
		w.log.Warn("dropping malformed job", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	log := w.log.With(zap.String("target", call.TargetUserID), zap.Int("attempt", msg.Attempt))

	start := time.Now()
	err = w.d.Dispatch(ctx, call)
	metrics.NotifyLatency.Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.WorkerJobs.WithLabelValues("delivered").Inc()
		log.Info("notification delivered", zap.String("queue", call.DisplayQueueNumber))
		return
	}

	next := msg.Attempt + 1
	if !Retryable(err) || next >= w.maxAttempts {
		metrics.WorkerJobs.WithLabelValues("dropped").Inc()
		log.Error("notification dropped", zap.Error(err))
		return
	}

	if d := w.backoff(next); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	msg.Attempt = next
	// Re-publish outside ctx so a shutdown mid-retry does not lose the job.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.q.Publish(pubCtx, msg); err != nil {
		metrics.WorkerJobs.WithLabelValues("dropped").Inc()
		log.Error("retry not queued", zap.Error(err))
		return
	}
	metrics.WorkerJobs.WithLabelValues("retried").Inc()
	log.Warn("notification failed, retry queued", zap.Error(err))
}
