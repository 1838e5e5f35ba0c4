package broker

import (
	"sync"
	"sync/atomic"

	xh "github.com/cespare/xxhash/v2"
)

type taskChan chan func()

// FanPool is a fixed-size fan-style worker pool: instead of one queue
// drained by many goroutines, it holds many queues, each drained by exactly
// one goroutine. Enqueue routes a task to a column by hashing a key (the
// client id), so every task for a given client always lands on the same
// column and runs in submission order relative to that client's other
// tasks, while different clients' tasks run fully concurrently across
// columns. The broker uses it to deliver each PUBLISH to its subscribers off
// the publisher's read loop, keeping every recipient's deliveries in order;
// incoming packets themselves are processed on each client's read loop.
type FanPool struct {
	queue    []taskChan
	wg       sync.WaitGroup
	capacity uint64
	perChan  uint64
}

// NewFanPool returns a new FanPool with fanSize columns, each buffering up
// to queueSize pending tasks.
func NewFanPool(fanSize, queueSize uint64) *FanPool {
	p := &FanPool{
		capacity: fanSize,
		perChan:  queueSize,
		queue:    make([]taskChan, fanSize),
	}
	for i := uint64(0); i < fanSize; i++ {
		p.queue[i] = make(taskChan, queueSize)
		p.wg.Add(1)
		go p.worker(p.queue[i])
	}
	return p
}

func (p *FanPool) worker(ch taskChan) {
	defer p.wg.Done()
	for task := range ch {
		task()
	}
}

// Enqueue routes task to the column determined by key and queues it there.
// It blocks if that column's queue is full.
func (p *FanPool) Enqueue(key string, task func()) {
	if p.Size() == 0 {
		return
	}
	p.queue[xh.Sum64String(key)%p.Size()] <- task
}

// Close shuts down every worker. Enqueue must not be called after Close.
func (p *FanPool) Close() {
	for _, ch := range p.queue {
		if ch != nil {
			close(ch)
		}
	}
	p.queue = nil
	atomic.StoreUint64(&p.capacity, 0)
}

// Wait blocks until every worker goroutine has exited after Close.
func (p *FanPool) Wait() {
	p.wg.Wait()
}

// Size returns the current number of columns.
func (p *FanPool) Size() uint64 {
	return atomic.LoadUint64(&p.capacity)
}
