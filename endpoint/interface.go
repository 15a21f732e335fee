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

// Package endpoint implements the client façade bound to a single remote
// endpoint: it builds requests, applies the interceptor chain, acquires
// pooled connections through the pipeline configurator, enforces the request
// timeout, and drives shutdown.
package endpoint

import (
	"context"
	"crypto/tls"
	"sync"

	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"

	libexc "github.com/nabbar/httpclient/exchange"
	libitc "github.com/nabbar/httpclient/intercept"
	libpol "github.com/nabbar/httpclient/pool"
	libtpt "github.com/nabbar/httpclient/transport"
	libwsk "github.com/nabbar/httpclient/websocket"
)

// Exchange is one pending request/response pair bound to the endpoint.
type Exchange interface {
	// Request returns the outbound request for configuration.
	Request() *libexc.Request

	// Send dispatches the request and blocks until the response headers are
	// available, the interceptor chain short-circuits, or the exchange fails.
	Send(ctx context.Context) (*libexc.Response, liberr.Error)
}

// Endpoint is a client bound to one remote endpoint.
type Endpoint interface {
	// Exchange builds a request bound to this endpoint. The target must be
	// absolute.
	Exchange(ctx context.Context, method, target string) (Exchange, liberr.Error)

	// WebSocket opens a WebSocket connection on a dedicated channel. The
	// target must be absolute.
	WebSocket(ctx context.Context, target string) (*libwsk.Conn, liberr.Error)

	// LoadFactor returns the mean load factor over pooled connections.
	LoadFactor() float64

	// ActiveRequests returns connecting + allocated + queued.
	ActiveRequests() int

	// Shutdown closes the pool and every live connection immediately.
	Shutdown()

	// ShutdownGracefully completes when every connection drained or the
	// context expired.
	ShutdownGracefully(ctx context.Context) liberr.Error
}

// New builds an endpoint from the given config, logger and interceptor
// chain. Interceptors compose left-to-right.
func New(cfg Config, log liblog.FuncLog, chain ...libitc.Interceptor) (Endpoint, liberr.Error) {
	if e := cfg.Validate(); e != nil {
		return nil, e
	}

	var def *tls.Config

	d, err := libtpt.New(cfg.Transport, def)
	if err != nil {
		return nil, err
	}

	o := &endpoint{
		g:   cfg,
		d:   d,
		log: log,
		i:   chain,
	}

	p, err := libpol.New(cfg.Pool, o.dial, log)
	if err != nil {
		return nil, err
	}

	o.p = p

	return o, nil
}

type endpoint struct {
	m   sync.Mutex
	g   Config
	d   libtpt.Dialer
	p   libpol.Pool
	log liblog.FuncLog
	i   []libitc.Interceptor
	w   []*libwsk.Conn
	cl  bool
}
