package cache

import (
	"sync"
)

// Priority of an operation on the serial queue
type Priority int8

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
	numPriorities
)

// SerialQueue runs one operation at a time, highest priority first and FIFO
// within a priority.
type SerialQueue struct {
	lock    *sync.Mutex
	pending [numPriorities][]func()
	wakeCh  chan struct{}
	closed  bool
	exitCh  chan struct{}
	doneCh  chan struct{}
}

// NewSerialQueue and start its worker
func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{
		lock:   &sync.Mutex{},
		wakeCh: make(chan struct{}, 1),
		exitCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue an operation, returns false if the queue is closed
func (q *SerialQueue) Enqueue(p Priority, op func()) bool {
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return false
	}
	q.pending[p] = append(q.pending[p], op)
	q.lock.Unlock()

	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
	return true
}

// Close stops the worker after the running operation, pending operations are dropped
func (q *SerialQueue) Close() {
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return
	}
	q.closed = true
	q.lock.Unlock()
	close(q.exitCh)
	<-q.doneCh
}

func (q *SerialQueue) next() func() {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed {
		return nil
	}
	for p := PriorityHigh; p < numPriorities; p++ {
		if len(q.pending[p]) == 0 {
			continue
		}
		op := q.pending[p][0]
		q.pending[p][0] = nil
		q.pending[p] = q.pending[p][1:]
		return op
	}
	return nil
}

func (q *SerialQueue) run() {
	defer close(q.doneCh)
	for {
		for op := q.next(); op != nil; op = q.next() {
			op()
		}
		select {
		case <-q.wakeCh:
		case <-q.exitCh:
			return
		}
	}
}
