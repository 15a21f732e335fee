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

package endpoint

import (
	"context"
	"strings"

	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"

	libcdg "github.com/nabbar/httpclient/coding"
	libexc "github.com/nabbar/httpclient/exchange"
	libitc "github.com/nabbar/httpclient/intercept"
)

func (o *endpoint) logger() liblog.Logger {
	if o.log != nil {
		if l := o.log(); l != nil {
			return l
		}
	}

	return liblog.New(func() context.Context { return context.Background() })
}

func (o *endpoint) Exchange(ctx context.Context, method, target string) (Exchange, liberr.Error) {
	if len(method) == 0 || len(target) == 0 {
		return nil, ErrorParamsEmpty.Error(nil)
	}

	if !strings.HasPrefix(target, "/") {
		return nil, ErrorInvalidTarget.Error(nil)
	}

	o.m.Lock()
	cl := o.cl
	o.m.Unlock()

	if cl {
		return nil, ErrorEndpointClosed.Error(nil)
	}

	req, err := libexc.NewRequest(method, target)
	if err != nil {
		return nil, err
	}

	req.HeaderDefault("User-Agent", o.g.userAgent())

	if o.g.Decompression {
		req.HeaderDefault("Accept-Encoding", libcdg.Tokens())
	}

	if len(req.Authority()) == 0 {
		_ = req.SetAuthority(o.d.Remote())
	}

	if len(req.Scheme()) == 0 {
		if o.g.Transport.TLS.Enable {
			_ = req.SetScheme("https")
		} else {
			_ = req.SetScheme("http")
		}
	}

	return &pending{o: o, x: ctx, q: req}, nil
}

type pending struct {
	o *endpoint
	x context.Context
	q *libexc.Request
}

func (p *pending) Request() *libexc.Request {
	return p.q
}

func (p *pending) Send(ctx context.Context) (*libexc.Response, liberr.Error) {
	if ctx == nil {
		ctx = p.x
	}

	o := p.o

	o.m.Lock()
	cl := o.cl
	o.m.Unlock()

	if cl {
		return nil, ErrorEndpointClosed.Error(nil)
	}

	var trf []libexc.FuncTransform

	if len(o.i) > 0 {
		ie := libitc.NewExchange(p.q)

		n, err := libitc.Compose(o.i...)(ctx, ie)
		if err != nil {
			return nil, err
		}

		if n == nil {
			// short-circuit: the synthesized response is the final one, the
			// wire is never touched
			return ie.Response().Build(), nil
		}

		ie.MarkDispatched()
		trf = ie.Response().Transformers()
	}

	h, err := o.p.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	ex := libexc.New(p.x, p.q, o.g.requestTimeout().Time())

	if err = h.Send(ctx, ex); err != nil {
		return nil, err
	}

	rsp, err := ex.Await(ctx)
	if err != nil {
		return nil, err
	}

	for _, f := range trf {
		_ = rsp.Stream().Transform(f)
	}

	return rsp, nil
}

func (o *endpoint) LoadFactor() float64 {
	return o.p.LoadFactor()
}

func (o *endpoint) ActiveRequests() int {
	return o.p.ActiveRequests()
}
