package worker

import (
	"context"
	"sync"

	"github.com/mmgwasm/mmgwasm/errors"
	"github.com/mmgwasm/mmgwasm/mesh"
)

type job struct {
	req  *Request
	resp chan *Response
}

// Local runs remesh jobs on a dedicated goroutine over a private
// session. Jobs execute strictly one at a time, which keeps the
// session's handle traffic single-threaded.
type Local struct {
	ses  *mesh.Session
	jobs chan job
	quit chan struct{}
	done chan struct{}

	stop     sync.Once
	closeErr error
}

// NewLocal starts the worker goroutine. The session's lifetime passes
// to the worker: Close tears it down.
func NewLocal(ses *mesh.Session) *Local {
	l := &Local{
		ses:  ses,
		jobs: make(chan job),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *Local) loop() {
	defer close(l.done)
	for {
		select {
		case j := <-l.jobs:
			j.resp <- run(context.Background(), l.ses, j.req)
		case <-l.quit:
			return
		}
	}
}

// Remesh submits a job and waits for its response. A closed worker or
// canceled context fails immediately.
func (l *Local) Remesh(ctx context.Context, req *Request) (*Response, error) {
	j := job{req: req, resp: make(chan *Response, 1)}
	select {
	case l.jobs <- j:
	case <-l.quit:
		return nil, errors.Disposed("worker")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-j.resp:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the goroutine and closes the session. Safe to call from
// multiple goroutines; later calls return the first teardown's error.
func (l *Local) Close(ctx context.Context) error {
	l.stop.Do(func() {
		close(l.quit)
		<-l.done
		l.closeErr = l.ses.Close(ctx)
	})
	return l.closeErr
}
