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

package http1

import (
	"bufio"
	"context"
	"net"
	"time"

	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"

	libexc "github.com/nabbar/httpclient/exchange"
	libptc "github.com/nabbar/httpclient/protocol"
)

func (o *Conn) logger() liblog.Logger {
	if o.log != nil {
		if l := o.log(); l != nil {
			return l
		}
	}

	return liblog.New(func() context.Context { return context.Background() })
}

func (o *Conn) Version() libptc.Version {
	return o.v
}

func (o *Conn) IsTLS() bool {
	return o.t
}

func (o *Conn) LocalAddr() net.Addr {
	return o.c.LocalAddr()
}

func (o *Conn) RemoteAddr() net.Addr {
	return o.c.RemoteAddr()
}

func (o *Conn) MaxConcurrent() int {
	o.m.Lock()
	defer o.m.Unlock()

	if o.nx != nil {
		return o.nx.MaxConcurrent()
	}

	return o.x
}

func (o *Conn) IsClosed() bool {
	return o.cd.Load()
}

// SetUpgradeFunc installs the pipeline swap used when the server accepts the
// h2c upgrade. Must be set before the first Send when UpgradeH2C is enabled.
func (o *Conn) SetUpgradeFunc(f FuncUpgrade) {
	o.m.Lock()
	defer o.m.Unlock()

	o.up = f
}

// Channel exposes the raw channel and its read buffer to the pipeline
// configurator performing the h2c swap.
func (o *Conn) Channel() (net.Conn, *bufio.Reader) {
	return o.c, o.br
}

func (o *Conn) RegisterOnClose(fct libptc.FuncOnClose) {
	o.m.Lock()
	defer o.m.Unlock()

	o.oc = append(o.oc, fct)
}

func (o *Conn) RegisterOnCapacity(fct libptc.FuncOnCapacity) {
	o.m.Lock()
	defer o.m.Unlock()

	o.op = append(o.op, fct)
}

// Send hands the exchange to the connection. The request is serialized on the
// connection event loop; responses surface in FIFO order.
func (o *Conn) Send(ctx context.Context, ex *libexc.Exchange) liberr.Error {
	if ex == nil || ex.Request() == nil {
		return ErrorParamsEmpty.Error(nil)
	}

	o.m.Lock()
	if n := o.nx; n != nil {
		o.m.Unlock()
		return n.Send(ctx, ex)
	}
	o.m.Unlock()

	var res liberr.Error

	err := o.l.PostWait(ctx, func() {
		res = o.send(ex)
	})

	if err != nil {
		return ErrorConnClosed.Error(err)
	}

	return res
}

// send runs on the event loop.
func (o *Conn) send(ex *libexc.Exchange) liberr.Error {
	o.m.Lock()

	if o.cd.Load() || o.cg {
		o.m.Unlock()
		return ErrorConnClosed.Error(nil)
	}

	if len(o.q) >= o.x {
		o.m.Unlock()
		return ErrorConnBusy.Error(nil)
	}

	f := &inflight{
		e: ex,
		u: o.u && o.up != nil && len(o.q) == 0,
	}

	o.q = append(o.q, f)
	o.m.Unlock()

	ex.SetCarrier(o)
	ex.Init()

	if err := o.writeExchange(f); err != nil {
		o.logger().Entry(loglvl.ErrorLevel, "writing request").ErrorAdd(true, err).Log()
		o.failAll(err)
		o.close()
		return err
	}

	o.rq <- f
	return nil
}

// ResetExchange implements the exchange carrier: on HTTP/1.x a reset tears
// the whole connection down.
func (o *Conn) ResetExchange(ex *libexc.Exchange, code libexc.ResetCode) {
	ex.Dispose(ErrorCancelledCause(code))
	o.close()
}

// ErrorCancelledCause maps a reset code to the disposal cause.
func ErrorCancelledCause(code libexc.ResetCode) liberr.Error {
	if code == libexc.ResetCancel {
		return libexc.ErrorCancelled.Error(nil)
	}

	return ErrorHttpClient.Error(nil)
}

func (o *Conn) Shutdown() {
	o.close()
}

func (o *Conn) ShutdownGracefully(ctx context.Context) liberr.Error {
	o.m.Lock()
	o.cg = true
	n := len(o.q)
	o.m.Unlock()

	if n == 0 {
		o.close()
		return nil
	}

	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			o.close()
			return ErrorConnClosed.Error(ctx.Err())
		case <-t.C:
			o.m.Lock()
			n = len(o.q)
			o.m.Unlock()

			if n == 0 || o.cd.Load() {
				o.close()
				return nil
			}
		}
	}
}

func (o *Conn) failAll(cause liberr.Error) {
	o.m.Lock()
	q := o.q
	o.q = nil
	o.m.Unlock()

	for _, f := range q {
		f.e.Dispose(cause)
	}
}

func (o *Conn) popHead() *inflight {
	o.m.Lock()
	defer o.m.Unlock()

	if len(o.q) == 0 {
		return nil
	}

	f := o.q[0]
	o.q = o.q[1:]

	return f
}

func (o *Conn) close() {
	if !o.cd.CompareAndSwap(false, true) {
		return
	}

	_ = o.c.Close()
	o.l.Stop()
	o.failAll(ErrorConnClosed.Error(nil))

	o.m.Lock()
	oc := o.oc
	o.oc = nil
	o.m.Unlock()

	for _, f := range oc {
		f()
	}
}

// swapPipeline installs the post-upgrade HTTP/2 connection and re-routes the
// close and capacity callbacks to it.
func (o *Conn) swapPipeline(n libptc.Connection) {
	o.m.Lock()
	o.nx = n
	oc := o.oc
	o.oc = nil
	op := o.op
	o.op = nil
	o.m.Unlock()

	for _, f := range oc {
		n.RegisterOnClose(f)
	}

	for _, f := range op {
		n.RegisterOnCapacity(f)
		f(n.MaxConcurrent())
	}

	o.l.Stop()
}
