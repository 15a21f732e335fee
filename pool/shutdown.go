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

package pool

import (
	"context"

	liberr "github.com/nabbar/golib/errors"
	libptc "github.com/nabbar/httpclient/protocol"
	"golang.org/x/sync/errgroup"
)

func (o *pool) Shutdown() {
	o.stop(func(c libptc.Connection) {
		c.Shutdown()
	})
}

func (o *pool) ShutdownGracefully(ctx context.Context) liberr.Error {
	o.cg.Store(true)

	var g errgroup.Group

	o.stop(func(c libptc.Connection) {
		g.Go(func() error {
			if e := c.ShutdownGracefully(ctx); e != nil {
				return e
			}

			return nil
		})
	})

	if e := g.Wait(); e != nil {
		return ErrorPoolClosed.Error(e)
	}

	return nil
}

// stop closes the pool once: waiters fail with pool closed, every active and
// parked connection goes through the given closer.
func (o *pool) stop(f func(libptc.Connection)) {
	var cs []libptc.Connection

	done := o.postWait(func() {
		for o.w.Len() > 0 {
			e := o.w.Front()
			w := e.Value.(*waiter)
			o.resolve(w, nil, ErrorPoolClosed.Error(nil))
		}

		for _, e := range o.a {
			e.r = true
			cs = append(cs, e.c)
		}

		o.a = nil

		for x := o.p.Front(); x != nil; x = x.Next() {
			e := x.Value.(*entry)
			e.r = true
			cs = append(cs, e.c)
		}

		o.p.Init()
		o.publish()
	})

	o.oo.Do(func() {
		o.cl.Store(true)

		if done {
			close(o.q)
		}
	})

	for _, c := range cs {
		f(c)
	}
}
