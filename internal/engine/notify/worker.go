package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// WorkerPool drains a Queue with a fixed number of goroutines. Each job is
// sent once; failures are logged by the dispatcher and dropped.
type WorkerPool struct {
	size       int
	queue      Queue
	dispatcher *Dispatcher
}

func NewWorkerPool(size int, queue Queue, dispatcher *Dispatcher) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{size: size, queue: queue, dispatcher: dispatcher}
}

// Run blocks until ctx is done or the queue is closed.
func (p *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	log.Info().Int("workers", p.size).Msg("worker pool started")

	wg.Wait()
	log.Info().Msg("worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			log.Error().Err(err).Int("worker", id).Msg("dequeue failed")
			time.Sleep(100 * time.Millisecond)
			continue
		}

		// In-flight sends finish on shutdown; the client timeout still applies.
		p.dispatcher.Process(context.WithoutCancel(ctx), job)
	}
}
