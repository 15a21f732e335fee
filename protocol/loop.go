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

package protocol

import (
	"context"
	"sync"
	"sync/atomic"
)

// Loop is the per-connection event loop. A single goroutine consumes the
// command queue; every mutation of connection state must go through Post or
// PostWait so it runs on that goroutine.
type Loop struct {
	q chan func()
	d chan struct{}
	o sync.Once
	s *atomic.Bool
}

// NewLoop creates an event loop with the given command queue depth and starts
// its goroutine.
func NewLoop(depth int) *Loop {
	if depth < 1 {
		depth = 64
	}

	l := &Loop{
		q: make(chan func(), depth),
		d: make(chan struct{}),
		s: new(atomic.Bool),
	}

	go l.run()

	return l
}

func (l *Loop) run() {
	defer close(l.d)

	for f := range l.q {
		f()
	}
}

// Post enqueues a command. It returns false when the loop is stopped.
func (l *Loop) Post(f func()) bool {
	if l.s.Load() {
		return false
	}

	defer func() {
		// racing a concurrent Stop: the queue may be closed under us
		_ = recover()
	}()

	l.q <- f
	return true
}

// PostWait enqueues a command and blocks until it ran or the context expired.
func (l *Loop) PostWait(ctx context.Context, f func()) error {
	w := make(chan struct{})

	if !l.Post(func() {
		defer close(w)
		f()
	}) {
		return context.Canceled
	}

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the queue. Pending commands still run; new posts are refused.
func (l *Loop) Stop() {
	l.o.Do(func() {
		l.s.Store(true)
		close(l.q)
	})
}

// Done is closed once the loop goroutine exited.
func (l *Loop) Done() <-chan struct{} {
	return l.d
}
