package streamhub

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/rs/zerolog"
)

// fanoutTask pushes one already-encoded payload into one subscriber's
// buffer. Tasks are cheap and independent, so dropping one under load
// costs that subscriber that one payload and never stalls the broadcast
// loop.
type fanoutTask func()

// broadcastPool bounds the number of goroutines fanning a single
// broadcast out to subscribers, so a burst of records (or a slow
// subscriber buffer) can't produce unbounded concurrency in the
// streaming process (§4.10, §5).
type broadcastPool struct {
	workerCount  int
	taskQueue    chan fanoutTask
	ctx          context.Context
	wg           sync.WaitGroup
	droppedTasks int64
	logger       zerolog.Logger
}

// newBroadcastPool builds a pool with workerCount workers and a queue
// sized queueSize. Call start before submit.
func newBroadcastPool(workerCount, queueSize int, logger zerolog.Logger) *broadcastPool {
	return &broadcastPool{
		workerCount: workerCount,
		taskQueue:   make(chan fanoutTask, queueSize),
		logger:      logger,
	}
}

// start launches the worker goroutines. ctx cancellation stops the
// workers; tasks still queued at that point are not run.
func (p *broadcastPool) start(ctx context.Context) {
	p.ctx = ctx
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *broadcastPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *broadcastPool) run(task fanoutTask) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Msg("broadcast fanout task panicked, worker continues")
			metrics.StreamBroadcastPanicsTotal.Inc()
		}
	}()
	task()
}

// submit enqueues task for asynchronous execution. If the queue is full
// the task is dropped and droppedTasks is incremented rather than
// blocking the broadcast loop or spawning an unbounded goroutine.
func (p *broadcastPool) submit(task fanoutTask) {
	select {
	case p.taskQueue <- task:
	default:
		atomic.AddInt64(&p.droppedTasks, 1)
	}
}

// droppedCount reports how many fanout tasks have been dropped for
// backpressure since the pool started.
func (p *broadcastPool) droppedCount() int64 {
	return atomic.LoadInt64(&p.droppedTasks)
}
