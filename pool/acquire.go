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
	"math/rand"
	"time"

	liberr "github.com/nabbar/golib/errors"
	loglvl "github.com/nabbar/golib/logger/level"

	libptc "github.com/nabbar/httpclient/protocol"
)

func (o *pool) Acquire(ctx context.Context) (Handle, liberr.Error) {
	if o.cl.Load() || o.cg.Load() {
		return nil, ErrorPoolClosed.Error(nil)
	}

	w := &waiter{ch: make(chan result, 1)}

	if t := o.g.ConnectTimeout.Time(); t > 0 {
		w.tm = time.AfterFunc(t, func() {
			_ = o.post(func() {
				o.resolve(w, nil, ErrorConnectionTimeout.Error(nil))
			})
		})
	}

	if !o.post(func() {
		o.acquire(w)
	}) {
		return nil, ErrorPoolClosed.Error(nil)
	}

	select {
	case r := <-w.ch:
		return r.h, r.e

	case <-ctx.Done():
		_ = o.post(func() {
			o.resolve(w, nil, ErrorConnectionTimeout.Error(ctx.Err()))
		})

		r := <-w.ch
		return r.h, r.e
	}
}

// acquire runs the selection algorithm. Executor only.
func (o *pool) acquire(w *waiter) {
	if w.cn {
		return
	}

	if o.cl.Load() || o.cg.Load() {
		o.resolve(w, nil, ErrorPoolClosed.Error(nil))
		return
	}

	if e := o.selectEntry(); e != nil {
		o.resolve(w, o.assign(e), nil)
		return
	}

	if len(o.a)+o.nc < o.g.MaxSize {
		o.grow(w)
		return
	}

	// buffer the waiter when the buffer accepts it
	if o.g.BufferSize < 0 || o.g.BufferSize-(o.w.Len()+o.nc) > 0 {
		w.el = o.w.PushBack(w)
		w.qd = true
		o.publish()
		return
	}

	o.resolve(w, nil, ErrorPoolFull.Error(nil))
}

// selectEntry samples up to SelectChoiceCount distinct active connections
// and returns the least loaded one, unless it is saturated or busier than
// the load threshold while the pool can still grow. Executor only.
func (o *pool) selectEntry() *entry {
	n := len(o.a)

	if n == 0 || o.fc <= 0 {
		return nil
	}

	k := o.g.SelectChoiceCount
	if k > n {
		k = n
	}

	var b *entry

	for _, i := range rand.Perm(n)[:k] {
		e := o.a[i]

		if b == nil || e.load() < b.load() {
			b = e
		}
	}

	if b == nil {
		return nil
	}

	f := b.load()

	if f >= 1 {
		return nil
	}

	if f > o.g.SelectLoadThreshold && len(o.a)+o.nc < o.g.MaxSize {
		return nil
	}

	return b
}

// grow revives a parked connection or opens a fresh channel, then hands the
// triggering waiter its reservation. Executor only.
func (o *pool) grow(w *waiter) {
	if e := o.revive(); e != nil {
		o.resolve(w, o.assign(e), nil)
		o.drain()
		return
	}

	o.nc++
	o.publish()

	go o.dial(w)
}

// revive pops the first non-expired parked connection back into the active
// array. Expired ones met on the way are shut down. Executor only.
func (o *pool) revive() *entry {
	for o.p.Len() > 0 {
		f := o.p.Front()
		e := f.Value.(*entry)
		o.p.Remove(f)

		if e.c.IsClosed() || o.expired(e) {
			e.r = true
			e.c.Shutdown()
			continue
		}

		e.p = false
		e.i = len(o.a)
		o.a = append(o.a, e)
		o.publish()

		return e
	}

	return nil
}

func (o *pool) expired(e *entry) bool {
	k := o.g.KeepAliveTimeout.Time()

	if k <= 0 || e.a > 0 {
		return false
	}

	return time.Now().After(e.u.Add(k))
}

// dial opens a channel off the executor, then posts the outcome back.
func (o *pool) dial(w *waiter) {
	ctx := context.Background()

	if t := o.g.ConnectTimeout.Time(); t > 0 {
		var cnl context.CancelFunc
		ctx, cnl = context.WithTimeout(ctx, t)
		defer cnl()
	}

	c, err := o.d(ctx)

	_ = o.post(func() {
		o.nc--

		if err != nil {
			o.logger().Entry(loglvl.ErrorLevel, "opening pooled connection").ErrorAdd(true, err).Log()
			o.publish()
			o.resolve(w, nil, ErrorConnect.Error(err))
			return
		}

		e := o.insert(c)
		o.resolve(w, o.assign(e), nil)
		o.drain()
	})
}

// insert registers a fresh connection in the active array and wires its
// close and capacity callbacks. Executor only.
func (o *pool) insert(c libptc.Connection) *entry {
	e := &entry{
		c: c,
		k: c.MaxConcurrent(),
		i: len(o.a),
		u: time.Now(),
	}

	o.a = append(o.a, e)

	c.RegisterOnClose(func() {
		_ = o.post(func() {
			o.remove(e)
		})
	})

	c.RegisterOnCapacity(func(n int) {
		_ = o.post(func() {
			if !e.r {
				e.k = n
				o.publish()
				o.drain()
			}
		})
	})

	o.publish()

	return e
}

// remove drops a connection wherever it lives. Executor only.
func (o *pool) remove(e *entry) {
	if e.r {
		return
	}

	e.r = true

	if e.p {
		for f := o.p.Front(); f != nil; f = f.Next() {
			if f.Value.(*entry) == e {
				o.p.Remove(f)
				break
			}
		}
	} else {
		for i, x := range o.a {
			if x == e {
				o.a = append(o.a[:i], o.a[i+1:]...)
				break
			}
		}

		for i, x := range o.a {
			x.i = i
		}
	}

	o.publish()
	o.drain()
}

// drain re-runs acquisition for buffered waiters while capacity lasts.
// Executor only.
func (o *pool) drain() {
	for o.w.Len() > 0 {
		if o.fc <= 0 && len(o.a)+o.nc >= o.g.MaxSize {
			return
		}

		f := o.w.Front()
		w := f.Value.(*waiter)
		o.w.Remove(f)
		w.el = nil
		w.qd = false
		w.rc = true

		o.acquire(w)

		if w.qd {
			// went straight back to the buffer, capacity is gone
			return
		}
	}
}

