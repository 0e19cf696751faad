package tape

import (
	"context"
	"errors"
	"sync"
)

// ErrNilRejection replaces a nil error passed to Reject.
var ErrNilRejection = errors.New("deferred rejected with nil error")

// Deferred is a value that settles later, either resolved with a value or
// rejected with an error. A wrapped function returns a *Deferred as its
// result to signal an asynchronous outcome.
//
// Settlement happens once; later Resolve or Reject calls are ignored.
// OnSettle callbacks run on the settling goroutine, in registration order,
// before Await callers are released.
type Deferred struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     any
	err       error
	callbacks []func(value any, err error)
}

// NewDeferred creates an unsettled deferred.
func NewDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// Resolved creates a deferred already resolved with v.
func Resolved(v any) *Deferred {
	d := NewDeferred()
	d.Resolve(v)
	return d
}

// Rejected creates a deferred already rejected with err.
func Rejected(err error) *Deferred {
	d := NewDeferred()
	d.Reject(err)
	return d
}

// Resolve settles d with v. Reports whether this call settled it.
func (d *Deferred) Resolve(v any) bool {
	return d.settle(v, nil)
}

// Reject settles d with err. Reports whether this call settled it.
func (d *Deferred) Reject(err error) bool {
	if err == nil {
		err = ErrNilRejection
	}
	return d.settle(nil, err)
}

func (d *Deferred) settle(v any, err error) bool {
	d.mu.Lock()
	if d.settled {
		d.mu.Unlock()
		return false
	}
	d.settled = true
	d.value = v
	d.err = err
	callbacks := d.callbacks
	d.callbacks = nil
	d.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	close(d.done)
	return true
}

// OnSettle registers cb to run when d settles. If d has already settled,
// cb runs immediately on the calling goroutine.
func (d *Deferred) OnSettle(cb func(value any, err error)) {
	d.mu.Lock()
	if !d.settled {
		d.callbacks = append(d.callbacks, cb)
		d.mu.Unlock()
		return
	}
	v, err := d.value, d.err
	d.mu.Unlock()
	cb(v, err)
}

// Done returns a channel closed once d has settled and its callbacks ran.
func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

// Await blocks until d settles or ctx is done. A settled deferred always
// returns its outcome, even with a cancelled ctx.
func (d *Deferred) Await(ctx context.Context) (any, error) {
	select {
	case <-d.done:
		return d.outcome()
	default:
	}

	select {
	case <-d.done:
		return d.outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Deferred) outcome() (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.err
}
