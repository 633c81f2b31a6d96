package worker

import (
	"context"
	"errors"
	"sync"

	"supercv-backend/internal/queue"
	"supercv-backend/internal/shared/telemetry"
)

// MemoryRunner drains an in-process queue. Failed jobs are re-enqueued until
// the processor reports success or the attempt ceiling is reached.
type MemoryRunner struct {
	queue       *queue.MemoryQueue
	processor   JobProcessor
	concurrency int
	maxAttempts int

	mu       sync.Mutex
	attempts map[string]int
}

// NewMemoryRunner constructs a runner over q.
func NewMemoryRunner(q *queue.MemoryQueue, processor JobProcessor, concurrency int) *MemoryRunner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &MemoryRunner{
		queue:       q,
		processor:   processor,
		concurrency: concurrency,
		maxAttempts: defaultMaxAttempts,
		attempts:    make(map[string]int),
	}
}

// Run starts the worker goroutines and blocks until ctx is cancelled and all of
// them have returned.
func (r *MemoryRunner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < r.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, err := r.queue.Receive(ctx)
				if err != nil {
					return
				}
				r.handle(ctx, msg)
			}
		}()
	}
	wg.Wait()
	return nil
}

func (r *MemoryRunner) handle(ctx context.Context, msg queue.Message) {
	if err := msg.Validate(); err != nil {
		telemetry.Error("worker.decode_failed", map[string]any{"analysis_id": msg.RecordID, "error": err})
		return
	}
	key := string(msg.Kind) + ":" + msg.RecordID
	attempt := r.nextAttempt(key)
	err := r.processor.Process(ctx, Job{Message: msg, Attempt: attempt})
	if err == nil || errors.Is(err, ErrUnrecoverable) || attempt >= r.maxAttempts || ctx.Err() != nil {
		if err != nil {
			telemetry.Error("worker.dropped", map[string]any{"analysis_id": msg.RecordID, "kind": string(msg.Kind), "attempt": attempt, "error": err})
		}
		r.forget(key)
		return
	}
	telemetry.Warn("worker.redeliver", map[string]any{"analysis_id": msg.RecordID, "kind": string(msg.Kind), "attempt": attempt, "error": err})
	if err := r.queue.Send(ctx, msg); err != nil {
		telemetry.Error("worker.requeue_failed", map[string]any{"analysis_id": msg.RecordID, "error": err})
		r.forget(key)
	}
}

func (r *MemoryRunner) nextAttempt(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[key]++
	return r.attempts[key]
}

func (r *MemoryRunner) forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, key)
}
