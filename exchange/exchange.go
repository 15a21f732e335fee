/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package exchange

import (
	"context"
	"sync"
	"time"

	liberr "github.com/nabbar/golib/errors"
)

// Exchange is the state machine of one request/response pair. The response
// sink emits at most once; the first recorded cause wins.
type Exchange struct {
	m sync.Mutex
	x context.Context
	q *Request
	r *Response
	k Carrier
	d time.Duration
	t *time.Timer
	e liberr.Error
	s chan *Response
	o sync.Once
	i bool // initialized
	z bool // disposed
	f bool // reset flag
	n []func()
	w sync.Once
}

// RegisterFinalizer installs a callback run exactly once when the exchange
// terminates: on disposal, or once the response body stream completed.
func (e *Exchange) RegisterFinalizer(f func()) {
	e.m.Lock()
	defer e.m.Unlock()

	e.n = append(e.n, f)
}

func (e *Exchange) finalize() {
	e.w.Do(func() {
		e.m.Lock()
		n := e.n
		e.n = nil
		e.m.Unlock()

		for _, f := range n {
			f()
		}
	})
}

// Context returns the caller-supplied context carried through the exchange.
func (e *Exchange) Context() context.Context {
	return e.x
}

// Request returns the outbound request of this exchange.
func (e *Exchange) Request() *Request {
	return e.q
}

// Response returns the emitted response or nil while headers are pending.
func (e *Exchange) Response() *Response {
	e.m.Lock()
	defer e.m.Unlock()

	return e.r
}

// SetCarrier binds the exchange to the connection that accepted it.
func (e *Exchange) SetCarrier(k Carrier) {
	e.m.Lock()
	defer e.m.Unlock()

	e.k = k
}

// Init arms the request timeout. Called by the connection when it accepts
// the exchange, before the request headers hit the wire.
func (e *Exchange) Init() {
	e.m.Lock()
	defer e.m.Unlock()

	if e.i || e.z {
		return
	}

	e.i = true

	if e.d > 0 {
		e.t = time.AfterFunc(e.d, e.onTimeout)
	}
}

// Start marks the request as connected: request mutators fail from now on.
func (e *Exchange) Start() {
	if e.q != nil {
		e.q.markSent()
	}
}

func (e *Exchange) onTimeout() {
	e.Dispose(ErrorTimeout.Error(nil))
	e.Reset(ResetCancel)
}

// EmitResponse delivers the response headers to the one-shot sink and cancels
// the request timeout. Extra calls are ignored.
func (e *Exchange) EmitResponse(r *Response) {
	e.m.Lock()

	if e.z || e.r != nil {
		e.m.Unlock()
		return
	}

	e.r = r
	e.stopTimer()
	e.m.Unlock()

	e.o.Do(func() {
		e.s <- r
		close(e.s)
	})

	go func() {
		<-r.Stream().Done()
		e.finalize()
	}()
}

// Dispose terminates the exchange: it cancels the timeout, records the cause
// (first wins), and fails the sink if no response has been emitted.
func (e *Exchange) Dispose(cause liberr.Error) {
	e.m.Lock()

	if e.z {
		e.m.Unlock()
		return
	}

	e.z = true
	e.stopTimer()

	if e.e == nil && cause != nil {
		e.e = cause
	}

	r := e.r
	e.m.Unlock()

	e.o.Do(func() {
		close(e.s)
	})

	if r != nil {
		r.dispose()
	}

	e.finalize()
}

// Reset triggers the protocol-specific reset of this exchange. Idempotent.
func (e *Exchange) Reset(code ResetCode) {
	e.m.Lock()

	if e.f {
		e.m.Unlock()
		return
	}

	e.f = true
	k := e.k
	e.m.Unlock()

	if k != nil {
		k.ResetExchange(e, code)
	}
}

// IsReset reports whether the exchange has been reset.
func (e *Exchange) IsReset() bool {
	e.m.Lock()
	defer e.m.Unlock()

	return e.f
}

// IsDisposed reports whether the exchange has been disposed.
func (e *Exchange) IsDisposed() bool {
	e.m.Lock()
	defer e.m.Unlock()

	return e.z
}

// Cause returns the first recorded failure cause, or nil.
func (e *Exchange) Cause() liberr.Error {
	e.m.Lock()
	defer e.m.Unlock()

	return e.e
}

// Await blocks until the response headers are available, the exchange fails,
// or the context expires. A context expiry resets the exchange with CANCEL.
func (e *Exchange) Await(ctx context.Context) (*Response, liberr.Error) {
	if ctx == nil {
		ctx = e.x
	}

	select {
	case r, ok := <-e.s:
		if ok && r != nil {
			return r, nil
		}

		if c := e.Cause(); c != nil {
			return nil, c
		}

		return nil, ErrorDisposed.Error(nil)

	case <-ctx.Done():
		e.Dispose(ErrorCancelled.Error(ctx.Err()))
		e.Reset(ResetCancel)
		return nil, ErrorCancelled.Error(ctx.Err())
	}
}

func (e *Exchange) stopTimer() {
	if e.t != nil {
		e.t.Stop()
		e.t = nil
	}
}
