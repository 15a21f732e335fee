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

package intercept

import (
	"net/http"
	"sync"

	liberr "github.com/nabbar/golib/errors"

	libexc "github.com/nabbar/httpclient/exchange"
)

// Exchange is the mutable proxy handed to interceptors. It wraps the live
// request and a synthesized response builder. Request returns the live
// request, whose own mutators refuse changes once it is sent; MarkDispatched
// freezes the response builder. After dispatch Response keeps returning that
// frozen builder and does not expose the connected response.
type Exchange struct {
	m sync.Mutex
	q *libexc.Request
	r *Response
	d bool // dispatched
}

// NewExchange wraps the given request for interception.
func NewExchange(req *libexc.Request) *Exchange {
	return &Exchange{
		q: req,
		r: &Response{
			s: http.StatusOK,
			h: make(http.Header),
		},
	}
}

// Request returns the live request. Its own mutators enforce immutability
// after send.
func (e *Exchange) Request() *libexc.Request {
	return e.q
}

// Response returns the intercepted response proxy.
func (e *Exchange) Response() *Response {
	return e.r
}

// MarkDispatched freezes the proxy. Called by the endpoint right before the
// request goes on the wire.
func (e *Exchange) MarkDispatched() {
	e.m.Lock()
	defer e.m.Unlock()

	e.d = true
	e.r.freeze()
}

// Response is the intercepted response: a mutable builder for synthesized
// responses and a transformer collector for real ones.
type Response struct {
	m sync.Mutex
	s int
	h http.Header
	b []byte
	t []libexc.FuncTransform
	f bool // frozen
	y bool // synthesized body or status set
}

// SetStatus records the synthesized status code.
func (r *Response) SetStatus(code int) liberr.Error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.f {
		return ErrorImmutable.Error(nil)
	}

	r.s = code
	r.y = true

	return nil
}

// Header returns the synthesized headers for mutation.
func (r *Response) Header() http.Header {
	return r.h
}

// SetBody records the synthesized payload.
func (r *Response) SetBody(p []byte) liberr.Error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.f {
		return ErrorImmutable.Error(nil)
	}

	r.b = p
	r.y = true

	return nil
}

// Transform collects a payload transformer, applied to the real body once it
// arrives, or to the synthesized data when the chain short-circuits.
func (r *Response) Transform(f libexc.FuncTransform) liberr.Error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.f {
		return ErrorImmutable.Error(nil)
	}

	r.t = append(r.t, f)

	return nil
}

// Transformers returns the collected payload transformers.
func (r *Response) Transformers() []libexc.FuncTransform {
	r.m.Lock()
	defer r.m.Unlock()

	return r.t
}

func (r *Response) freeze() {
	r.m.Lock()
	defer r.m.Unlock()

	r.f = true
}

// Build materializes the synthesized response, feeding the recorded payload
// through the collected transformers.
func (r *Response) Build() *libexc.Response {
	r.m.Lock()
	s := r.s
	h := r.h.Clone()
	b := r.b
	t := r.t
	r.f = true
	r.m.Unlock()

	st := libexc.NewStream(1)

	for _, f := range t {
		_ = st.Transform(f)
	}

	go func() {
		if len(b) > 0 {
			_ = st.Write(nil, b)
		}

		st.CloseSend()
	}()

	return libexc.NewResponse(s, h, st)
}
