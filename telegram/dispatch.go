package telegram

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// dispatcher runs jobs for the same key one at a time in submission order. Jobs for
// different keys run concurrently, at most maxWorkers at once.
type dispatcher struct {
	mu        sync.Mutex
	queues    map[string][]func()
	semaphore *semaphore.Weighted
	wg        sync.WaitGroup
}

func newDispatcher(maxWorkers int) *dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &dispatcher{
		queues:    make(map[string][]func()),
		semaphore: semaphore.NewWeighted(int64(maxWorkers)),
	}
}

func (d *dispatcher) submit(key string, job func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	queue, running := d.queues[key]
	d.queues[key] = append(queue, job)
	if running {
		return
	}

	d.wg.Add(1)
	go d.drain(key)
}

// drain owns key until its queue is empty. A key present in queues has exactly one drain.
func (d *dispatcher) drain(key string) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		job := queue[0]
		queue[0] = nil
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		d.semaphore.Acquire(context.Background(), 1)
		job()
		d.semaphore.Release(1)
	}
}

// wait blocks until every submitted job has finished.
func (d *dispatcher) wait() {
	d.wg.Wait()
}

func (d *dispatcher) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}
