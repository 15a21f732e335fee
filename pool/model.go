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
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	libatm "github.com/nabbar/golib/atomic"
	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"

	libexc "github.com/nabbar/httpclient/exchange"
	libptc "github.com/nabbar/httpclient/protocol"
)

type pool struct {
	g   Config
	d   FuncDial
	log liblog.FuncLog

	q chan func()   // command queue, consumed by the executor goroutine
	h chan struct{} // closed when the executor stopped

	// state below is owned by the executor goroutine
	a  []*entry   // active connections
	p  *list.List // parked deque, FIFO; lazily initialized
	w  *list.List // pending waiters, FIFO
	nc int        // connecting
	tc int        // total capacity over active
	fc int        // free capacity over active

	cw libatm.Value[int] // queued waiters, read by metrics
	cc libatm.Value[int] // connecting, read by metrics
	ca libatm.Value[int] // allocated sum, read by metrics
	ct libatm.Value[int] // total capacity, read by metrics

	cl atomic.Bool // closed
	cg atomic.Bool // closing gracefully
	oo sync.Once
}

type waiter struct {
	ch chan result
	tm *time.Timer
	el *list.Element
	qd bool // queued
	cn bool // canceled
	rc bool // recycled through a fresh connection
}

type result struct {
	h Handle
	e liberr.Error
}

func (o *pool) logger() liblog.Logger {
	if o.log != nil {
		if l := o.log(); l != nil {
			return l
		}
	}

	return liblog.New(func() context.Context { return context.Background() })
}

// run is the pool executor: the only goroutine mutating pool state.
func (o *pool) run() {
	defer close(o.h)

	o.p = list.New()

	for f := range o.q {
		f()
	}
}

// post enqueues a command on the executor.
func (o *pool) post(f func()) bool {
	if o.cl.Load() {
		select {
		case <-o.h:
			return false
		default:
		}
	}

	defer func() {
		_ = recover()
	}()

	o.q <- f
	return true
}

func (o *pool) cleaner() {
	t := time.NewTicker(o.g.CleanPeriod.Time())
	defer t.Stop()

	for {
		select {
		case <-o.h:
			return
		case <-t.C:
			if !o.post(o.clean) {
				return
			}
		}
	}
}

// publish refreshes the metric mirrors after a state mutation. Executor only.
func (o *pool) publish() {
	var al, tc, fr int

	for _, e := range o.a {
		al += e.a
		tc += e.k
	}

	fr = tc - al
	o.tc = tc
	o.fc = fr

	o.ca.Store(al)
	o.ct.Store(tc)
	o.cc.Store(o.nc)
	o.cw.Store(o.w.Len())
}

func (o *pool) Size() int {
	var n int

	_ = o.postWait(func() {
		n = len(o.a)
	})

	return n
}

func (o *pool) postWait(f func()) bool {
	w := make(chan struct{})

	if !o.post(func() {
		defer close(w)
		f()
	}) {
		return false
	}

	<-w
	return true
}

func (o *pool) LoadFactor() float64 {
	var v float64

	_ = o.postWait(func() {
		if len(o.a) == 0 {
			return
		}

		var s float64

		for _, e := range o.a {
			s += e.load()
		}

		v = s / float64(len(o.a))
	})

	return v
}

func (o *pool) ActiveRequests() int {
	return o.cc.Load() + o.ca.Load() + o.cw.Load()
}

// handle is one reservation on an entry.
type handle struct {
	o *pool
	e *entry
	r atomic.Bool
}

func (h *handle) Connection() libptc.Connection {
	return h.e.c
}

func (h *handle) Send(ctx context.Context, ex *libexc.Exchange) liberr.Error {
	if ex == nil {
		h.Release()
		return ErrorParamsEmpty.Error(nil)
	}

	ex.RegisterFinalizer(h.Release)

	err := h.e.c.Send(ctx, ex)
	if err != nil {
		h.Release()
		return err
	}

	return nil
}

func (h *handle) Release() {
	if !h.r.CompareAndSwap(false, true) {
		return
	}

	o := h.o
	e := h.e

	_ = o.post(func() {
		if e.a > 0 {
			e.a--
		}

		e.u = time.Now()
		o.publish()
		o.drain()
	})
}

// assign reserves one slot on the entry. Executor only.
func (o *pool) assign(e *entry) Handle {
	e.a++
	o.publish()

	return &handle{o: o, e: e}
}

// resolve hands a waiter its handle or its error, at most once; a handle
// reaching an already resolved waiter is released. Executor only.
func (o *pool) resolve(w *waiter, h Handle, e liberr.Error) {
	if w.cn {
		if h != nil {
			h.Release()
		}

		return
	}

	w.cn = true

	if w.tm != nil {
		w.tm.Stop()
	}

	if w.el != nil {
		o.w.Remove(w.el)
		w.el = nil
		w.qd = false
	}

	w.ch <- result{h: h, e: e}
	o.publish()
}
