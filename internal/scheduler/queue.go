package scheduler

import "sync"

// JobKind tags a queued job.
type JobKind uint8

const (
	// JobInit compiles sources and creates pipeline objects for a shader.
	JobInit JobKind = iota
	// JobBake finalizes a single created pipeline object.
	JobBake
)

// String returns the job kind name.
func (k JobKind) String() string {
	switch k {
	case JobInit:
		return "init"
	case JobBake:
		return "bake"
	default:
		return "unknown"
	}
}

// job is one unit of queued work. It is consumed exactly once.
type job struct {
	kind   JobKind
	shader uint32

	// init jobs
	run      func() bool
	finalize func()

	// bake jobs
	pipeline  uint64
	bindPoint uint32
}

// queue is a FIFO of jobs guarded by its own lock. A worker is woken through
// the buffered wake channel; a pending wake is never lost because the channel
// holds one token and the worker always swaps out the whole queue.
type queue struct {
	mu   sync.Mutex
	jobs []job
	wake chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

func (q *queue) push(j job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// swap atomically takes the entire queue contents.
func (q *queue) swap() []job {
	q.mu.Lock()
	jobs := q.jobs
	q.jobs = nil
	q.mu.Unlock()
	return jobs
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
