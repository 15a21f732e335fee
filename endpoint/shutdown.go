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

	liberr "github.com/nabbar/golib/errors"
	libwsk "github.com/nabbar/httpclient/websocket"
	"golang.org/x/sync/errgroup"
)

func (o *endpoint) Shutdown() {
	w := o.markClosed()

	o.p.Shutdown()

	for _, c := range w {
		c.Shutdown()
	}
}

func (o *endpoint) ShutdownGracefully(ctx context.Context) liberr.Error {
	w := o.markClosed()

	var g errgroup.Group

	g.Go(func() error {
		if e := o.p.ShutdownGracefully(ctx); e != nil {
			return e
		}

		return nil
	})

	for _, c := range w {
		c := c

		g.Go(func() error {
			if e := c.ShutdownGracefully(ctx); e != nil {
				return e
			}

			return nil
		})
	}

	if e := g.Wait(); e != nil {
		return ErrorEndpointClosed.Error(e)
	}

	return nil
}

func (o *endpoint) markClosed() []*libwsk.Conn {
	o.m.Lock()
	defer o.m.Unlock()

	o.cl = true
	w := make([]*libwsk.Conn, len(o.w))
	copy(w, o.w)

	return w
}
