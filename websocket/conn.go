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

package websocket

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"sync"
	"time"

	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"

	libptc "github.com/nabbar/httpclient/protocol"
)

const closeReasonMax = 120

// Conn is one WebSocket connection after a completed handshake. Inbound
// frames flow through a buffered unicast channel; outbound frames are
// written one at a time on the event loop.
type Conn struct {
	m   sync.Mutex
	c   net.Conn
	t   bool
	g   Config
	br  *bufio.Reader
	bw  *bufio.Writer
	l   *libptc.Loop
	log liblog.FuncLog

	sp string
	xt extensions

	in chan *Frame
	fp bool // fragment sequence in progress
	cs bool // close sent
	cr bool // close received
	cd bool // transport closed
	ct *time.Timer

	oc []libptc.FuncOnClose
}

func newConn(cnx net.Conn, br *bufio.Reader, tls bool, sub string, xt extensions, cfg Config, log liblog.FuncLog) *Conn {
	o := &Conn{
		c:   cnx,
		t:   tls,
		g:   cfg,
		br:  br,
		bw:  bufio.NewWriter(cnx),
		l:   libptc.NewLoop(0),
		log: log,
		sp:  sub,
		xt:  xt,
		in:  make(chan *Frame, cfg.inboundBuffer()),
	}

	go o.readLoop()

	return o
}

func (o *Conn) logger() liblog.Logger {
	if o.log != nil {
		if l := o.log(); l != nil {
			return l
		}
	}

	return liblog.New(func() context.Context { return context.Background() })
}

// Subprotocol returns the subprotocol selected by the server, if any.
func (o *Conn) Subprotocol() string {
	return o.sp
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

func (o *Conn) IsClosed() bool {
	o.m.Lock()
	defer o.m.Unlock()

	return o.cd
}

// RegisterOnClose installs the close callback.
func (o *Conn) RegisterOnClose(fct libptc.FuncOnClose) {
	o.m.Lock()
	defer o.m.Unlock()

	o.oc = append(o.oc, fct)
}

// ReadFrame returns the next inbound frame in arrival order.
func (o *Conn) ReadFrame(ctx context.Context) (*Frame, liberr.Error) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case f, k := <-o.in:
		if !k {
			return nil, ErrorConnClosed.Error(nil)
		}

		return f, nil

	case <-ctx.Done():
		return nil, ErrorConnClosed.Error(ctx.Err())
	}
}

// WriteFrame sends one data or control frame. CLOSE frames are refused:
// callers must use Close.
func (o *Conn) WriteFrame(ctx context.Context, f *Frame) liberr.Error {
	if f == nil {
		return ErrorParamsEmpty.Error(nil)
	}

	if f.Op == OpClose {
		return ErrorCloseReserved.Error(nil)
	}

	if o.xt.perFrame && !f.Op.IsControl() && len(f.Payload) > 0 && !f.Compressed {
		if p, e := deflatePayload(f.Payload); e == nil {
			f = &Frame{Final: f.Final, Compressed: true, Op: f.Op, Payload: p}
		}
	}

	return o.write(ctx, f)
}

func (o *Conn) write(ctx context.Context, f *Frame) liberr.Error {
	if ctx == nil {
		ctx = context.Background()
	}

	var err error

	e := o.l.PostWait(ctx, func() {
		err = writeFrame(o.bw, f)
	})

	if e != nil {
		return ErrorConnClosed.Error(e)
	}

	if err != nil {
		o.teardown()
		return ErrorFrameWrite.Error(err)
	}

	return nil
}

// Close starts the closing handshake: a CLOSE frame goes out with the reason
// clamped so the payload stays within a control frame, then the peer CLOSE
// is awaited under the configured timeout before the transport goes down.
func (o *Conn) Close(code StatusCode, reason string) liberr.Error {
	o.m.Lock()

	if o.cs || o.cd {
		o.m.Unlock()
		return nil
	}

	o.cs = true
	o.m.Unlock()

	if len(reason) > closeReasonMax+3 {
		reason = reason[:closeReasonMax] + "..."
	}

	p := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(p, uint16(code))
	p = append(p, reason...)

	if e := o.write(context.Background(), &Frame{Final: true, Op: OpClose, Payload: p}); e != nil {
		return e
	}

	o.m.Lock()

	if o.cr {
		// peer already closed its side, nothing left to wait for
		o.m.Unlock()
		o.teardown()
		return nil
	}

	if t := o.g.InboundCloseTimeout.Time(); t > 0 {
		o.ct = time.AfterFunc(t, func() {
			o.logger().Entry(loglvl.InfoLevel, "no close frame received, forcing close").Log()
			o.teardown()
		})
	}

	o.m.Unlock()
	return nil
}

// Shutdown closes the transport immediately.
func (o *Conn) Shutdown() {
	o.teardown()
}

// ShutdownGracefully runs the closing handshake with 1001 and waits for the
// transport to go down or the context to expire.
func (o *Conn) ShutdownGracefully(ctx context.Context) liberr.Error {
	if e := o.Close(StatusEndpointUnavailable, "going away"); e != nil {
		return e
	}

	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			o.teardown()
			return ErrorConnClosed.Error(ctx.Err())
		case <-t.C:
			if o.IsClosed() {
				return nil
			}
		}
	}
}

func (o *Conn) readLoop() {
	defer close(o.in)

	for {
		f, err := readFrame(o.br)
		if err != nil {
			o.teardown()
			return
		}

		if f.Compressed && o.xt.perFrame {
			if p, e := inflatePayload(f.Payload); e == nil {
				f.Payload = p
				f.Compressed = false
			}
		}

		if !f.Op.IsControl() && !o.checkFragment(f) {
			o.fail(StatusProtocolError)
			return
		}

		switch f.Op {
		case OpPing:
			_ = o.write(context.Background(), &Frame{Final: true, Op: OpPong, Payload: f.Payload})
			continue

		case OpClose:
			o.onClose(f)
			return
		}

		select {
		case o.in <- f:
		default:
			// inbound buffer overrun, peer outpaces the consumer
			o.fail(StatusInternalError)
			return
		}
	}
}

// checkFragment enforces the continuation rules: CONTINUATION needs an open
// fragment sequence, and a new data frame cannot preempt one.
func (o *Conn) checkFragment(f *Frame) bool {
	if f.Op == OpContinuation {
		if !o.fp {
			return false
		}

		if f.Final {
			o.fp = false
		}

		return true
	}

	if o.fp {
		return false
	}

	if !f.Final {
		o.fp = true
	}

	return true
}

func (o *Conn) onClose(f *Frame) {
	o.m.Lock()
	o.cr = true
	sent := o.cs

	if o.ct != nil {
		o.ct.Stop()
		o.ct = nil
	}
	o.m.Unlock()

	if !sent {
		// echo the close code back, then drop the transport
		p := f.Payload
		if len(p) > 2 {
			p = p[:2]
		}

		_ = o.write(context.Background(), &Frame{Final: true, Op: OpClose, Payload: p})
	}

	o.teardown()
}

// fail sends a CLOSE with the given code and drops the transport.
func (o *Conn) fail(code StatusCode) {
	p := make([]byte, 2)
	binary.BigEndian.PutUint16(p, uint16(code))

	o.m.Lock()
	o.cs = true
	o.m.Unlock()

	_ = o.write(context.Background(), &Frame{Final: true, Op: OpClose, Payload: p})
	o.teardown()
}

func (o *Conn) teardown() {
	o.m.Lock()

	if o.cd {
		o.m.Unlock()
		return
	}

	o.cd = true

	if o.ct != nil {
		o.ct.Stop()
		o.ct = nil
	}

	oc := o.oc
	o.oc = nil
	o.m.Unlock()

	_ = o.c.Close()
	o.l.Stop()

	for _, f := range oc {
		f()
	}
}
