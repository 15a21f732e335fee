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
	"io"
	"sync"
)

// FuncTransform rewrites a body stream before the consumer subscribes.
// Transformers compose in declaration order.
type FuncTransform func(io.ReadCloser) io.ReadCloser

// Stream is a unicast bounded byte-chunk channel: a single producer (the
// connection event loop) feeds it, a single consumer reads it at most once.
// Producer writes block on consumer demand.
type Stream struct {
	m sync.Mutex
	c chan []byte
	f []FuncTransform
	e error
	s bool          // subscribed
	k func()        // cancel hook
	n func(int)     // consumed hook
	w chan struct{} // consumer cancelled
	d chan struct{} // producer terminated
	o sync.Once     // terminate once
	x sync.Once     // cancel once
	b []byte        // pending chunk
}

// NewStream creates a body stream with the given chunk buffer depth.
func NewStream(depth int) *Stream {
	if depth < 1 {
		depth = 8
	}

	return &Stream{
		c: make(chan []byte, depth),
		w: make(chan struct{}),
		d: make(chan struct{}),
	}
}

// OnCancel installs the hook run when the consumer closes before the end of
// the stream.
func (s *Stream) OnCancel(f func()) {
	s.m.Lock()
	defer s.m.Unlock()

	s.k = f
}

// OnConsumed installs the hook run with the size of each chunk handed to the
// consumer. HTTP/2 connections use it to send WINDOW_UPDATE.
func (s *Stream) OnConsumed(f func(int)) {
	s.m.Lock()
	defer s.m.Unlock()

	s.n = f
}

// Transform appends a stream transformer. It must be called before the
// consumer subscribes.
func (s *Stream) Transform(f FuncTransform) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.s {
		return ErrorBodyConsumed.Error(nil)
	}

	s.f = append(s.f, f)
	return nil
}

// Write hands one chunk to the consumer, blocking while the buffer is full.
// It fails once the consumer cancelled or the context expired.
func (s *Stream) Write(ctx context.Context, p []byte) error {
	if len(p) == 0 {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-s.w:
		return io.ErrClosedPipe
	default:
	}

	select {
	case s.c <- p:
		return nil
	case <-s.w:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseSend terminates the stream normally: the consumer observes EOF once
// buffered chunks are drained.
func (s *Stream) CloseSend() {
	s.o.Do(func() {
		close(s.c)
		close(s.d)
	})
}

// Fail terminates the stream with an error surfaced to the consumer after
// buffered chunks are drained.
func (s *Stream) Fail(err error) {
	s.o.Do(func() {
		s.m.Lock()
		s.e = err
		s.m.Unlock()
		close(s.c)
		close(s.d)
	})
}

// Done is closed once the producer terminated the stream.
func (s *Stream) Done() <-chan struct{} {
	return s.d
}

// Reader subscribes to the stream and returns the composed consumer surface.
// A stream accepts exactly one subscription.
func (s *Stream) Reader() (io.ReadCloser, error) {
	s.m.Lock()

	if s.s {
		s.m.Unlock()
		return nil, ErrorBodyConsumed.Error(nil)
	}

	s.s = true
	f := s.f
	s.m.Unlock()

	var r io.ReadCloser = (*streamReader)(s)

	for _, t := range f {
		r = t(r)
	}

	return r, nil
}

// Drain subscribes to the stream when nobody else did and releases every
// buffered chunk. Used on disposal.
func (s *Stream) Drain() {
	r, err := s.Reader()
	if err != nil {
		return
	}

	go func() {
		_, _ = io.Copy(io.Discard, r)
		_ = r.Close()
	}()
}

func (s *Stream) cancel() {
	s.x.Do(func() {
		close(s.w)

		s.m.Lock()
		k := s.k
		s.m.Unlock()

		select {
		case <-s.d:
			// producer already done, nothing to reset
		default:
			if k != nil {
				k()
			}
		}
	})
}

type streamReader Stream

func (r *streamReader) Read(p []byte) (int, error) {
	s := (*Stream)(r)

	for len(s.b) == 0 {
		v, ok := <-s.c
		if !ok {
			s.m.Lock()
			e := s.e
			s.m.Unlock()

			if e != nil {
				return 0, e
			}

			return 0, io.EOF
		}

		s.b = v

		s.m.Lock()
		n := s.n
		s.m.Unlock()

		if n != nil {
			n(len(v))
		}
	}

	c := copy(p, s.b)
	s.b = s.b[c:]

	return c, nil
}

func (r *streamReader) Close() error {
	(*Stream)(r).cancel()
	return nil
}
