package queue

import (
	"context"
	"errors"
)

// ErrQueueFull is returned when the in-process buffer has no room.
var ErrQueueFull = errors.New("queue full")

// MemoryQueue is an in-process queue for local development. Messages are lost
// on restart.
type MemoryQueue struct {
	ch chan Message
}

// NewMemoryQueue returns a queue buffering up to size messages.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 128
	}
	return &MemoryQueue{ch: make(chan Message, size)}
}

// Send enqueues msg without blocking.
func (q *MemoryQueue) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Receive blocks until a message is available or ctx is done.
func (q *MemoryQueue) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case msg := <-q.ch:
		return msg, nil
	}
}

// Len reports the number of buffered messages.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

var _ Client = (*MemoryQueue)(nil)
