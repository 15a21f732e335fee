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
	"io"
	"net/http"
	"strconv"
	"sync"
)

// Response is the inbound half of an exchange: status, headers, unicast body
// stream, and trailers visible once the body completed.
type Response struct {
	m sync.Mutex
	s int
	h http.Header
	b *Stream
	t http.Header
}

// NewResponse builds a response around the given status, headers and body
// stream. A nil body is replaced by an already-terminated stream.
func NewResponse(status int, hdr http.Header, body *Stream) *Response {
	if hdr == nil {
		hdr = make(http.Header)
	}

	if body == nil {
		body = NewStream(1)
		body.CloseSend()
	}

	return &Response{
		s: status,
		h: hdr,
		b: body,
	}
}

// StatusCode returns the response status code.
func (r *Response) StatusCode() int {
	return r.s
}

// Status returns the textual status line part.
func (r *Response) Status() string {
	return strconv.Itoa(r.s) + " " + http.StatusText(r.s)
}

// Header returns the inbound headers.
func (r *Response) Header() http.Header {
	return r.h
}

// ContentType returns the response content type.
func (r *Response) ContentType() string {
	return r.h.Get("Content-Type")
}

// ContentLength returns the declared body length, or a negative value when
// unknown.
func (r *Response) ContentLength() int64 {
	v := r.h.Get("Content-Length")
	if len(v) == 0 {
		return -1
	}

	if n, e := strconv.ParseInt(v, 10, 64); e == nil {
		return n
	}

	return -1
}

// Cookies parses the inbound Set-Cookie headers.
func (r *Response) Cookies() []*http.Cookie {
	x := http.Response{Header: r.h}
	return x.Cookies()
}

// Stream returns the raw body stream, for transformation before subscribing.
func (r *Response) Stream() *Stream {
	return r.b
}

// Body subscribes to the response body. A body accepts exactly one
// subscription; closing the returned reader before EOF cancels the exchange.
func (r *Response) Body() (io.ReadCloser, error) {
	return r.b.Reader()
}

// SetTrailers records the trailing headers. Called by the connection before
// it terminates the body stream.
func (r *Response) SetTrailers(t http.Header) {
	r.m.Lock()
	defer r.m.Unlock()

	r.t = t
}

// Trailers returns the trailing headers, only once the body stream
// completed; nil before that or when the response carried none.
func (r *Response) Trailers() http.Header {
	select {
	case <-r.b.Done():
	default:
		return nil
	}

	r.m.Lock()
	defer r.m.Unlock()

	return r.t
}

func (r *Response) dispose() {
	r.b.Drain()
}
