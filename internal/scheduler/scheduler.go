package scheduler

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// ErrMisuse is the panic value (wrapped) when Flush is called from a
// goroutine other than the one that created the Scheduler.
var ErrMisuse = errors.New("scheduler: Flush called from a goroutine that does not own the scheduler")

// BakeFunc finalizes a created pipeline object. Errors are logged and do not
// affect other jobs.
type BakeFunc func(shader uint32, pipeline uint64, bindPoint uint32) error

// Options configures a Scheduler.
type Options struct {
	// Multithreaded starts one worker goroutine per queue. When false,
	// every Init drains both queues and flushes inline.
	Multithreaded bool

	// Bake runs bake jobs. Nil makes bake jobs no-ops.
	Bake BakeFunc
}

// Stats is a snapshot of scheduler progress.
type Stats struct {
	Pending       int // jobs enqueued but not yet completed
	QueuedInit    int // init jobs waiting for the worker
	QueuedBake    int // bake jobs waiting for the worker
	AwaitFinalize int // shaders waiting for Flush to finalize them
	Multithreaded bool
	Running       bool
}

// Scheduler is the two-queue build job system.
//
// Lock order: queue locks, countsMu, finalizeMu and pendingMu are never held
// together. Running a job holds none of them.
type Scheduler struct {
	opts  Options
	owner int64

	init *queue
	bake *queue

	// countsMu guards per-shader outstanding job counts.
	countsMu sync.Mutex
	counts   map[uint32]int

	// finalizeMu guards the pending-finalization set.
	finalizeMu sync.Mutex
	finalize   map[uint32]func()

	// pendingMu guards the global pending counter; flushCond is signalled
	// whenever it decreases.
	pendingMu sync.Mutex
	flushCond *sync.Cond
	pending   int

	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// New creates a Scheduler owned by the calling goroutine and, in
// multithreaded mode, starts its two workers.
func New(opts Options) *Scheduler {
	s := &Scheduler{
		opts:     opts,
		owner:    goid.Get(),
		init:     newQueue(),
		bake:     newQueue(),
		counts:   make(map[uint32]int),
		finalize: make(map[uint32]func()),
		done:     make(chan struct{}),
	}
	s.flushCond = sync.NewCond(&s.pendingMu)
	s.running.Store(true)

	if opts.Multithreaded {
		s.wg.Add(2)
		go s.worker(s.init)
		go s.worker(s.bake)
	}

	slogger().Debug("scheduler: started", "multithreaded", opts.Multithreaded)
	return s
}

// Multithreaded reports whether the Scheduler runs worker goroutines.
func (s *Scheduler) Multithreaded() bool { return s.opts.Multithreaded }

// Init enqueues an init job for shader. run reports success; on success
// finalize is added to the pending-finalization set and runs during the next
// Flush. A finalize step still waiting from an earlier Init of the same
// shader is discarded.
//
// In single-threaded mode Init drains both queues and flushes before
// returning, so it must then be called from the owning goroutine.
func (s *Scheduler) Init(shader uint32, run func() bool, finalize func()) {
	if !s.running.Load() {
		slogger().Debug("scheduler: init dropped after stop", "shader", shader)
		return
	}

	s.finalizeMu.Lock()
	delete(s.finalize, shader)
	s.finalizeMu.Unlock()

	s.enqueue(s.init, job{kind: JobInit, shader: shader, run: run, finalize: finalize})

	if !s.opts.Multithreaded {
		s.drainInline()
		s.Flush()
	}
}

// Bake enqueues a bake job for a pipeline created by shader. It is called
// from inside init jobs.
func (s *Scheduler) Bake(shader uint32, pipeline uint64, bindPoint uint32) {
	if !s.running.Load() {
		return
	}
	s.enqueue(s.bake, job{kind: JobBake, shader: shader, pipeline: pipeline, bindPoint: bindPoint})
}

func (s *Scheduler) enqueue(q *queue, j job) {
	s.countsMu.Lock()
	s.counts[j.shader]++
	s.countsMu.Unlock()

	s.pendingMu.Lock()
	s.pending++
	s.pendingMu.Unlock()

	q.push(j)
}

// IsShaderQueued reports whether shader has outstanding init or bake jobs.
// It never waits on queue or finalization locks.
func (s *Scheduler) IsShaderQueued(shader uint32) bool {
	s.countsMu.Lock()
	defer s.countsMu.Unlock()
	return s.counts[shader] > 0
}

// Flush blocks until no jobs are pending, then finalizes every shader in the
// pending-finalization set in index order. Finalize steps may enqueue more
// work (deferred pipeline creation); Flush keeps going until both the
// pending counter and the finalization set are empty.
//
// Flush panics with an error wrapping ErrMisuse when called from a goroutine
// other than the owner.
func (s *Scheduler) Flush() {
	if id := goid.Get(); id != s.owner {
		panic(fmt.Errorf("%w (owner %d, caller %d)", ErrMisuse, s.owner, id))
	}

	for {
		if !s.opts.Multithreaded {
			s.drainInline()
		}
		s.waitIdle()

		batch := s.takeFinalize()
		if len(batch) == 0 {
			if s.Pending() == 0 || !s.running.Load() {
				return
			}
			continue
		}
		for _, fn := range batch {
			fn()
		}
	}
}

// Pending returns the global count of outstanding jobs.
func (s *Scheduler) Pending() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return s.pending
}

// Stats returns a snapshot of the scheduler state.
func (s *Scheduler) Stats() Stats {
	s.finalizeMu.Lock()
	await := len(s.finalize)
	s.finalizeMu.Unlock()

	return Stats{
		Pending:       s.Pending(),
		QueuedInit:    s.init.len(),
		QueuedBake:    s.bake.len(),
		AwaitFinalize: await,
		Multithreaded: s.opts.Multithreaded,
		Running:       s.running.Load(),
	}
}

// Stop shuts the workers down and waits for them. Jobs already running
// finish; queued jobs are dropped without running. Stop is idempotent.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.done)
	s.wg.Wait()

	dropped := s.init.swap()
	dropped = append(dropped, s.bake.swap()...)
	for _, j := range dropped {
		s.release(j.shader)
	}

	s.finalizeMu.Lock()
	clear(s.finalize)
	s.finalizeMu.Unlock()

	s.pendingMu.Lock()
	s.pending = 0
	s.flushCond.Broadcast()
	s.pendingMu.Unlock()

	slogger().Debug("scheduler: stopped", "dropped", len(dropped))
}

func (s *Scheduler) worker(q *queue) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-q.wake:
		}
		if !s.running.Load() {
			return
		}
		s.runBatch(q.swap())
	}
}

// drainInline runs both queues on the calling goroutine until they are empty.
func (s *Scheduler) drainInline() {
	for {
		inits := s.init.swap()
		bakes := s.bake.swap()
		if len(inits) == 0 && len(bakes) == 0 {
			return
		}
		s.runBatch(inits)
		s.runBatch(bakes)
	}
}

func (s *Scheduler) runBatch(jobs []job) {
	if len(jobs) == 0 {
		return
	}
	for _, j := range jobs {
		if s.running.Load() {
			ok := s.run(j)
			if ok && j.kind == JobInit && j.finalize != nil {
				s.finalizeMu.Lock()
				s.finalize[j.shader] = j.finalize
				s.finalizeMu.Unlock()
			}
		}
		s.release(j.shader)
	}

	s.pendingMu.Lock()
	s.pending -= len(jobs)
	if s.pending < 0 {
		s.pending = 0
	}
	s.flushCond.Broadcast()
	s.pendingMu.Unlock()
}

// run executes one job. Panics are recovered and reported as failures.
func (s *Scheduler) run(j job) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slogger().Error("scheduler: job panicked",
				"kind", j.kind, "shader", j.shader, "panic", r)
			ok = false
		}
	}()

	switch j.kind {
	case JobInit:
		if j.run == nil {
			return true
		}
		return j.run()
	case JobBake:
		if s.opts.Bake == nil {
			return true
		}
		if err := s.opts.Bake(j.shader, j.pipeline, j.bindPoint); err != nil {
			slogger().Warn("scheduler: bake failed",
				"shader", j.shader, "pipeline", j.pipeline, "err", err)
			return false
		}
		return true
	}
	return false
}

func (s *Scheduler) release(shader uint32) {
	s.countsMu.Lock()
	if n := s.counts[shader] - 1; n > 0 {
		s.counts[shader] = n
	} else {
		delete(s.counts, shader)
	}
	s.countsMu.Unlock()
}

func (s *Scheduler) waitIdle() {
	s.pendingMu.Lock()
	for s.pending > 0 && s.running.Load() {
		s.flushCond.Wait()
	}
	s.pendingMu.Unlock()
}

// takeFinalize empties the pending-finalization set and returns its steps
// ordered by shader index.
func (s *Scheduler) takeFinalize() []func() {
	s.finalizeMu.Lock()
	defer s.finalizeMu.Unlock()
	if len(s.finalize) == 0 {
		return nil
	}
	steps := make([]func(), 0, len(s.finalize))
	for _, idx := range slices.Sorted(maps.Keys(s.finalize)) {
		steps = append(steps, s.finalize[idx])
	}
	clear(s.finalize)
	return steps
}
