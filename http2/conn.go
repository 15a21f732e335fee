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

package http2

import (
	"context"
	"net"
	"time"

	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
	"golang.org/x/net/http2"

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
	return libptc.VersionHTTP2
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

	return o.mx
}

func (o *Conn) IsClosed() bool {
	o.m.Lock()
	defer o.m.Unlock()

	return o.cd
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

// handshake writes the client preface and the SETTINGS frame.
func (o *Conn) handshake() error {
	if _, err := o.c.Write([]byte(preface)); err != nil {
		return ErrorHttpClient.Error(err)
	}

	s := []http2.Setting{
		{ID: http2.SettingEnablePush, Val: 0},
		{ID: http2.SettingHeaderTableSize, Val: o.g.headerTableSize()},
		{ID: http2.SettingInitialWindowSize, Val: o.g.initialWindowSize()},
		{ID: http2.SettingMaxFrameSize, Val: o.g.maxFrameSize()},
	}

	if o.g.MaxHeaderListSize > 0 {
		s = append(s, http2.Setting{ID: http2.SettingMaxHeaderListSize, Val: o.g.MaxHeaderListSize})
	}

	if err := o.fr.WriteSettings(s...); err != nil {
		return ErrorHttpClient.Error(err)
	}

	return o.bw.Flush()
}

// adoptUpgraded registers the h2c upgrade exchange as stream 1, half closed
// on the local side.
func (o *Conn) adoptUpgraded(ex *libexc.Exchange) {
	s := &stream{
		i:  1,
		e:  ex,
		wn: o.wp,
	}

	o.m.Lock()
	o.st[1] = s
	o.id = 3
	o.m.Unlock()

	ex.SetCarrier(o)
}

func (o *Conn) Shutdown() {
	o.close(ErrorConnClosed.Error(nil))
}

func (o *Conn) ShutdownGracefully(ctx context.Context) liberr.Error {
	o.m.Lock()
	o.cg = true
	n := len(o.st)
	o.m.Unlock()

	_ = o.l.PostWait(ctx, func() {
		_ = o.fr.WriteGoAway(0, http2.ErrCodeNo, nil)
		_ = o.bw.Flush()
	})

	if n == 0 {
		o.close(nil)
		return nil
	}

	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			o.close(ErrorConnClosed.Error(ctx.Err()))
			return ErrorConnClosed.Error(ctx.Err())
		case <-t.C:
			o.m.Lock()
			n = len(o.st)
			d := o.cd
			o.m.Unlock()

			if n == 0 || d {
				o.close(nil)
				return nil
			}
		}
	}
}

// ResetExchange implements the exchange carrier: RST_STREAM with the mapped
// error code, stream forgotten.
func (o *Conn) ResetExchange(ex *libexc.Exchange, code libexc.ResetCode) {
	o.m.Lock()

	var s *stream

	for _, x := range o.st {
		if x.e == ex {
			s = x
			break
		}
	}

	if s == nil {
		o.m.Unlock()
		return
	}

	delete(o.st, s.i)
	o.m.Unlock()

	_ = o.l.Post(func() {
		_ = o.fr.WriteRSTStream(s.i, http2.ErrCode(code))
		_ = o.bw.Flush()
	})

	if code == libexc.ResetCancel {
		ex.Dispose(libexc.ErrorCancelled.Error(nil))
	} else {
		ex.Dispose(ErrorStreamReset.Error(nil))
	}

	if s.s != nil {
		s.s.Fail(ErrorStreamReset.Error(nil))
	}
}

func (o *Conn) close(cause liberr.Error) {
	o.m.Lock()

	if o.cd {
		o.m.Unlock()
		return
	}

	o.cd = true
	st := o.st
	o.st = make(map[uint32]*stream)
	oc := o.oc
	o.oc = nil
	o.m.Unlock()

	if cause == nil {
		cause = ErrorConnClosed.Error(nil)
	}

	for _, s := range st {
		s.e.Dispose(cause)

		if s.s != nil {
			s.s.Fail(cause)
		}

		s.releaseWriter()
	}

	o.l.Stop()
	_ = o.c.Close()

	for _, f := range oc {
		f()
	}
}

func (o *Conn) notifyCapacity(n int) {
	o.m.Lock()
	op := make([]libptc.FuncOnCapacity, len(o.op))
	copy(op, o.op)
	o.m.Unlock()

	for _, f := range op {
		f(n)
	}
}
