package pagination

import (
	"container/list"
	"context"
)

// request is one outstanding call for the next item.
type request[T any] struct {
	id   uint64
	fut  *Future[T]
	elem *list.Element // position in the queue, nil once dequeued
	stop func() bool   // unregisters the context watcher
}

func newRequest[T any](id uint64) *request[T] {
	return &request[T]{id: id, fut: NewFuture[T]()}
}

// watch registers fn to run when ctx is done.
func (r *request[T]) watch(ctx context.Context, fn func(error)) {
	if ctx.Done() == nil {
		return
	}
	r.stop = context.AfterFunc(ctx, func() {
		fn(ctx.Err())
	})
}

func (r *request[T]) release() {
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
}

// requestQueue is a FIFO of pending requests. Removal of an arbitrary
// request (on cancellation) is O(1).
type requestQueue[T any] struct {
	l list.List
}

func (q *requestQueue[T]) push(r *request[T]) {
	r.elem = q.l.PushBack(r)
}

func (q *requestQueue[T]) pop() (*request[T], bool) {
	e := q.l.Front()
	if e == nil {
		return nil, false
	}
	r := q.l.Remove(e).(*request[T])
	r.elem = nil
	return r, true
}

func (q *requestQueue[T]) remove(r *request[T]) bool {
	if r.elem == nil {
		return false
	}
	q.l.Remove(r.elem)
	r.elem = nil
	return true
}

func (q *requestQueue[T]) len() int {
	return q.l.Len()
}

// drain removes and returns every queued request in FIFO order.
func (q *requestQueue[T]) drain() []*request[T] {
	out := make([]*request[T], 0, q.l.Len())
	for r, ok := q.pop(); ok; r, ok = q.pop() {
		out = append(out, r)
	}
	return out
}

// activeSlot holds the single request currently being serviced.
type activeSlot[T any] struct {
	req *request[T]
}

func (s *activeSlot[T]) get() (*request[T], bool) {
	return s.req, s.req != nil
}

func (s *activeSlot[T]) holds(r *request[T]) bool {
	return s.req != nil && s.req == r
}

func (s *activeSlot[T]) set(r *request[T]) {
	if s.req != nil {
		panic("pagination: internal error: activating a request while another is active")
	}
	s.req = r
}

func (s *activeSlot[T]) clear() {
	s.req = nil
}
