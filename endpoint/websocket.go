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
	"net/http"
	"strings"

	liberr "github.com/nabbar/golib/errors"

	libwsk "github.com/nabbar/httpclient/websocket"
)

// WebSocket opens a dedicated channel, runs the RFC 6455 handshake on it and
// returns the live connection. The connection is tracked for shutdown.
func (o *endpoint) WebSocket(ctx context.Context, target string) (*libwsk.Conn, liberr.Error) {
	if !strings.HasPrefix(target, "/") {
		return nil, ErrorInvalidTarget.Error(nil)
	}

	o.m.Lock()
	cl := o.cl
	o.m.Unlock()

	if cl {
		return nil, ErrorEndpointClosed.Error(nil)
	}

	ch, err := o.d.Dial(ctx, nil)
	if err != nil {
		return nil, err
	}

	h := make(http.Header)
	h.Set("User-Agent", o.g.userAgent())

	c, err := libwsk.Handshake(ch.Conn, ch.TLS, o.d.Remote(), target, h, o.g.WebSocket, o.log)
	if err != nil {
		_ = ch.Conn.Close()
		return nil, err
	}

	o.m.Lock()
	o.w = append(o.w, c)
	o.m.Unlock()

	c.RegisterOnClose(func() {
		o.m.Lock()
		defer o.m.Unlock()

		for i, x := range o.w {
			if x == c {
				o.w = append(o.w[:i], o.w[i+1:]...)
				return
			}
		}
	})

	return c, nil
}
