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
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	liberr "github.com/nabbar/golib/errors"
)

// Request is the outbound half of an exchange. All mutators fail once the
// request headers have been serialized on the wire.
type Request struct {
	m sync.Mutex
	d string // method
	s string // scheme
	a string // authority
	p string // normalized path
	q url.Values
	h http.Header
	b *Body
	t bool // sent
}

// NewRequest builds a request for the given method and absolute target.
func NewRequest(method, target string) (*Request, liberr.Error) {
	if len(method) == 0 || len(target) == 0 {
		return nil, ErrorParamsEmpty.Error(nil)
	}

	if !strings.HasPrefix(target, "/") {
		return nil, ErrorParamsEmpty.Error(errInvalidTarget(target))
	}

	u, err := url.ParseRequestURI(target)
	if err != nil {
		return nil, ErrorParamsEmpty.Error(err)
	}

	return &Request{
		d: strings.ToUpper(method),
		p: path.Clean(u.Path),
		q: u.Query(),
		h: make(http.Header),
	}, nil
}

// Method returns the request method.
func (r *Request) Method() string {
	r.m.Lock()
	defer r.m.Unlock()

	return r.d
}

// SetMethod replaces the request method.
func (r *Request) SetMethod(method string) liberr.Error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.t {
		return ErrorAlreadySent.Error(nil)
	}

	r.d = strings.ToUpper(method)
	return nil
}

// Scheme returns the request scheme (http or https).
func (r *Request) Scheme() string {
	r.m.Lock()
	defer r.m.Unlock()

	return r.s
}

// SetScheme replaces the request scheme.
func (r *Request) SetScheme(scheme string) liberr.Error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.t {
		return ErrorAlreadySent.Error(nil)
	}

	r.s = scheme
	return nil
}

// Authority returns the request authority (host[:port]).
func (r *Request) Authority() string {
	r.m.Lock()
	defer r.m.Unlock()

	return r.a
}

// SetAuthority replaces the request authority.
func (r *Request) SetAuthority(authority string) liberr.Error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.t {
		return ErrorAlreadySent.Error(nil)
	}

	r.a = authority
	return nil
}

// Path returns the normalized request path without query.
func (r *Request) Path() string {
	r.m.Lock()
	defer r.m.Unlock()

	return r.p
}

// Target returns the request target: normalized path plus encoded query.
func (r *Request) Target() string {
	r.m.Lock()
	defer r.m.Unlock()

	if len(r.q) == 0 {
		return r.p
	}

	return r.p + "?" + r.q.Encode()
}

// AddQuery appends one query parameter.
func (r *Request) AddQuery(key, val string) liberr.Error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.t {
		return ErrorAlreadySent.Error(nil)
	}

	r.q.Add(key, val)
	return nil
}

// Header returns a copy of the outbound headers.
func (r *Request) Header() http.Header {
	r.m.Lock()
	defer r.m.Unlock()

	return r.h.Clone()
}

// HeaderGet returns the first value of the given outbound header.
func (r *Request) HeaderGet(key string) string {
	r.m.Lock()
	defer r.m.Unlock()

	return r.h.Get(key)
}

// HeaderSet replaces the given outbound header.
func (r *Request) HeaderSet(key string, val ...string) liberr.Error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.t {
		return ErrorAlreadySent.Error(nil)
	}

	r.h.Del(key)
	for _, v := range val {
		r.h.Add(key, v)
	}

	return nil
}

// HeaderAdd appends one outbound header value.
func (r *Request) HeaderAdd(key, val string) liberr.Error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.t {
		return ErrorAlreadySent.Error(nil)
	}

	r.h.Add(key, val)
	return nil
}

// HeaderDefault sets the given header only when the caller did not.
func (r *Request) HeaderDefault(key, val string) {
	r.m.Lock()
	defer r.m.Unlock()

	if r.t {
		return
	}

	if len(r.h.Get(key)) == 0 {
		r.h.Set(key, val)
	}
}

// AddCookie appends a Cookie header value.
func (r *Request) AddCookie(c *http.Cookie) liberr.Error {
	if c == nil {
		return ErrorParamsEmpty.Error(nil)
	}

	return r.HeaderAdd("Cookie", c.String())
}

// Body returns the request body, or nil when none is set.
func (r *Request) Body() *Body {
	r.m.Lock()
	defer r.m.Unlock()

	return r.b
}

// SetBody installs the body, superseding any previously set one. The method
// must allow a payload.
func (r *Request) SetBody(b *Body) liberr.Error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.t {
		return ErrorAlreadySent.Error(nil)
	}

	switch r.d {
	case http.MethodGet, http.MethodHead, http.MethodTrace:
		if b != nil {
			return ErrorParamsEmpty.Error(errBodyNotAllowed(r.d))
		}
	}

	r.b = b
	return nil
}

// IsSent reports whether the request headers hit the wire.
func (r *Request) IsSent() bool {
	r.m.Lock()
	defer r.m.Unlock()

	return r.t
}

func (r *Request) markSent() {
	r.m.Lock()
	defer r.m.Unlock()

	r.t = true
}
