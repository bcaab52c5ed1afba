package worker

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrPoolFull   = errors.New("worker queue full")
	ErrPoolClosed = errors.New("worker pool closed")
)

// Task is a unit of work run on one of the pool's goroutines.
type Task func()

// Pool runs tasks on a fixed set of goroutines fed by a bounded queue.
type Pool struct {
	tasks chan Task
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(size, queue int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queue < 0 {
		queue = 0
	}

	p := &Pool{tasks: make(chan Task, queue)}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.work(i)
	}
	return p
}

// Submit queues task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// Close stops accepting tasks and waits for the queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker task panicked", "worker", id, "panic", r)
		}
	}()
	task()
}
