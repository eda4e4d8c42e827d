// Package workerpool serves HTTP requests on a fixed number of worker
// goroutines. Each worker handles one request at a time to completion.
// Requests wait for a free worker in a bounded FIFO backlog; when the backlog
// is full the request is answered with 503 Service Unavailable.
package workerpool

import (
	"context"
	"fmt"
	"hello/pkg/controller"
	"hello/pkg/logger"
	"hello/pkg/metrics"
	"hello/pkg/serrors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Options sizes the pool.
type Options struct {
	// Workers is the number of requests served concurrently.
	Workers int
	// Backlog is the number of requests that may wait for a worker.
	Backlog int
}

const (
	taskQueued int32 = iota
	taskRunning
	taskAbandoned
)

type task struct {
	w        http.ResponseWriter
	r        *http.Request
	next     http.Handler
	enqueued time.Time

	state atomic.Int32
	done  chan struct{}
	panic any
}

// Pool is a fixed size pool of request workers.
type Pool struct {
	opts  Options
	queue chan *task

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup

	busy     prometheus.Gauge
	queued   prometheus.GaugeFunc
	rejected prometheus.Counter
	dropped  prometheus.Counter
	wait     prometheus.Histogram
}

// New creates a pool and registers its metrics with reg. Call Start before
// serving requests.
func New(opts Options, reg prometheus.Registerer) (*Pool, error) {
	if opts.Workers < 1 {
		return nil, fmt.Errorf("worker pool needs at least one worker, got %d", opts.Workers)
	}
	if opts.Backlog < 0 {
		return nil, fmt.Errorf("worker pool backlog must not be negative, got %d", opts.Backlog)
	}

	p := &Pool{
		opts:  opts,
		queue: make(chan *task, opts.Backlog),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace, Subsystem: "workerpool", Name: "busy_workers",
			Help: "Number of workers currently serving a request.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace, Subsystem: "workerpool", Name: "rejected_requests_total",
			Help: "Requests answered with 503 because the backlog was full or the pool was stopped.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace, Subsystem: "workerpool", Name: "dropped_requests_total",
			Help: "Queued requests skipped because the client went away.",
		}),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metrics.Namespace, Subsystem: "workerpool", Name: "queue_wait_seconds",
			Help:    "Time requests spent waiting for a worker.",
			Buckets: metrics.DefaultBuckets,
		}),
	}

	// read from the channel so the value never runs ahead of the backlog
	p.queued = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metrics.Namespace, Subsystem: "workerpool", Name: "queued_requests",
		Help: "Number of requests waiting for a free worker.",
	}, func() float64 { return float64(len(p.queue)) })

	if reg != nil {
		workers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metrics.Namespace, Subsystem: "workerpool", Name: "workers",
			Help: "Configured number of workers.",
		}, func() float64 { return float64(opts.Workers) })

		for _, c := range []prometheus.Collector{p.busy, p.queued, p.rejected, p.dropped, p.wait, workers} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("could not register worker pool metrics: %w", err)
			}
		}
	}

	return p, nil
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.opts.Workers }

// Start launches the workers. It is a no-op on a started pool.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	logger.Info(ctx, "starting worker pool",
		zap.Int("workers", p.opts.Workers),
		zap.Int("backlog", p.opts.Backlog))

	p.wg.Add(p.opts.Workers)
	for range p.opts.Workers {
		go p.work()
	}
}

// Stop stops accepting requests, lets the workers finish everything already
// queued and waits for them to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		for t := range p.queue {
			if t.state.CompareAndSwap(taskQueued, taskRunning) {
				p.reject(t.w, t.r, errShuttingDown)
				t.finish()
			}
		}

		return
	}
	p.wg.Wait()
}

func (p *Pool) work() {
	defer p.wg.Done()

	for t := range p.queue {
		p.wait.Observe(time.Since(t.enqueued).Seconds())

		if !t.state.CompareAndSwap(taskQueued, taskRunning) {
			p.dropped.Inc()

			continue
		}
		if t.r.Context().Err() != nil {
			p.dropped.Inc()
			t.finish()

			continue
		}

		p.serve(t)
	}
}

func (p *Pool) serve(t *task) {
	p.busy.Inc()
	defer p.busy.Dec()
	defer t.finish()
	defer func() {
		// the handler goroutine re-raises it so net/http deals with it
		t.panic = recover()
	}()

	t.next.ServeHTTP(t.w, t.r)
}

func (t *task) finish() {
	close(t.done)
}

var (
	errBacklogFull  = serrors.With(serrors.ErrUnavailable, "all workers are busy and the backlog is full")
	errShuttingDown = serrors.With(serrors.ErrUnavailable, "server is shutting down")
)

func (p *Pool) reject(w http.ResponseWriter, r *http.Request, err error) {
	p.rejected.Inc()
	logger.Warn(r.Context(), "request rejected by worker pool", zap.Error(err))
	w.Header().Set("Retry-After", "1")
	controller.WriteError(w, r, err, false)
}

// Handler runs next on a pool worker. The calling goroutine blocks until the
// worker is done with the request.
func (p *Pool) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := &task{w: w, r: r, next: next, enqueued: time.Now(), done: make(chan struct{})}

		p.mu.RLock()
		if p.closed {
			p.mu.RUnlock()
			p.reject(w, r, errShuttingDown)

			return
		}
		select {
		case p.queue <- t:
		default:
			p.mu.RUnlock()
			p.reject(w, r, errBacklogFull)

			return
		}
		p.mu.RUnlock()

		select {
		case <-t.done:
		case <-r.Context().Done():
			if t.state.CompareAndSwap(taskQueued, taskAbandoned) {
				return
			}
			// a worker already owns the response writer
			<-t.done
		}

		if t.panic != nil {
			panic(t.panic)
		}
	})
}
