package engine

import "context"

type request struct {
	state State
	fn    func(*DeviceContext)
	done  chan error
}

// Exec runs fn on the control loop with exclusive access to the
// DeviceContext, provided the device is in state when the loop gets to it.
// Otherwise it returns ErrInactive without calling fn. fn must not block for
// long; it holds up the loop.
func (e *Engine) Exec(ctx context.Context, state State, fn func(*DeviceContext)) error {
	req := &request{state: state, fn: fn, done: make(chan error, 1)}
	select {
	case e.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

func (e *Engine) drainRequests() {
	for {
		select {
		case req := <-e.requests:
			e.backlog = append(e.backlog, req)
		default:
			return
		}
	}
}

// dispatch serves every queued request against the current state.
func (e *Engine) dispatch(dc *DeviceContext) {
	e.drainRequests()
	for _, req := range e.backlog {
		if req.state != dc.State {
			req.done <- ErrInactive
			continue
		}
		req.fn(dc)
		req.done <- nil
	}
	e.backlog = e.backlog[:0]
}
