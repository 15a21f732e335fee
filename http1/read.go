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
	"context"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	loglvl "github.com/nabbar/golib/logger/level"

	libcdg "github.com/nabbar/httpclient/coding"
	libexc "github.com/nabbar/httpclient/exchange"
	libptc "github.com/nabbar/httpclient/protocol"
)

// readLoop consumes responses from the wire, matching them to in-flight
// exchanges strictly in FIFO order.
func (o *Conn) readLoop() {
	for f := range o.rq {
		if o.cd.Load() {
			return
		}

		if !o.readOne(f) {
			return
		}
	}
}

// readOne reads a full response for the head-of-line exchange. It returns
// false when the connection must stop reading.
func (o *Conn) readOne(f *inflight) bool {
	st, hdr, err := o.readHead()
	if err != nil {
		if h := o.popHead(); h != nil {
			h.e.Dispose(ErrorHttpClient.Error(err))
		}

		o.close()
		return false
	}

	// interim responses carry no body and do not complete the exchange
	for st >= 100 && st < 200 && st != http.StatusSwitchingProtocols {
		if st, hdr, err = o.readHead(); err != nil {
			if h := o.popHead(); h != nil {
				h.e.Dispose(ErrorHttpClient.Error(err))
			}

			o.close()
			return false
		}
	}

	if f.u {
		if st == http.StatusSwitchingProtocols {
			return o.upgrade(f)
		}

		// upgrade refused: stay on HTTP/1.1, stop advertising
		o.m.Lock()
		o.u = false
		o.m.Unlock()
	}

	if st == http.StatusSwitchingProtocols {
		// not ours to handle here: websocket upgrades own the channel
		o.popHead()
		f.e.Dispose(ErrorHttpUpgrade.Error(nil))
		o.close()
		return false
	}

	s := libexc.NewStream(o.g.BodyBuffer)
	s.OnCancel(func() {
		f.e.Reset(libexc.ResetCancel)
	})

	r := libexc.NewResponse(st, hdr, s)

	if o.g.Decompression {
		if d := libcdg.Decoder(hdr.Get("Content-Encoding")); d != nil {
			_ = s.Transform(d)
		}
	}

	noBody := f.e.Request().Method() == http.MethodHead ||
		st == http.StatusNoContent || st == http.StatusNotModified

	f.e.EmitResponse(r)

	if e := o.readBody(f, r, s, noBody); e != nil {
		o.logger().Entry(loglvl.ErrorLevel, "reading response body").ErrorAdd(true, e).Log()
		s.Fail(ErrorBodyRead.Error(e))
		o.popHead()
		o.close()
		return false
	}

	o.popHead()

	if o.shouldClose(hdr) {
		o.close()
		return false
	}

	o.m.Lock()
	gc := o.cg && len(o.q) == 0
	o.m.Unlock()

	if gc {
		o.close()
		return false
	}

	return true
}

func (o *Conn) readHead() (int, http.Header, error) {
	t := textproto.NewReader(o.br)

	l, err := t.ReadLine()
	if err != nil {
		return 0, nil, err
	}

	p := strings.SplitN(l, " ", 3)
	if len(p) < 2 || !strings.HasPrefix(p[0], "HTTP/") {
		return 0, nil, ErrorHttpClient.Error(nil)
	}

	st, err := strconv.Atoi(p[1])
	if err != nil {
		return 0, nil, err
	}

	mh, err := t.ReadMIMEHeader()
	if err != nil {
		return 0, nil, err
	}

	return st, http.Header(mh), nil
}

func (o *Conn) readBody(f *inflight, r *libexc.Response, s *libexc.Stream, noBody bool) error {
	hdr := r.Header()

	defer s.CloseSend()

	if noBody {
		return nil
	}

	if strings.EqualFold(hdr.Get("Transfer-Encoding"), "chunked") {
		return o.readChunked(r, s)
	}

	if n := r.ContentLength(); n >= 0 {
		return o.copyStream(s, io.LimitReader(o.br, n))
	}

	// length-delimited by connection close (HTTP/1.0 style)
	o.m.Lock()
	o.cg = true
	o.m.Unlock()

	e := o.copyStream(s, o.br)
	if e == io.ErrUnexpectedEOF || e == io.EOF {
		return nil
	}

	return e
}

func (o *Conn) readChunked(r *libexc.Response, s *libexc.Stream) error {
	t := textproto.NewReader(o.br)

	for {
		l, err := t.ReadLine()
		if err != nil {
			return err
		}

		if i := strings.IndexByte(l, ';'); i >= 0 {
			l = l[:i]
		}

		n, err := strconv.ParseInt(strings.TrimSpace(l), 16, 64)
		if err != nil {
			return err
		}

		if n == 0 {
			break
		}

		if err = o.copyStream(s, io.LimitReader(o.br, n)); err != nil {
			return err
		}

		// chunk data trailing CRLF
		if _, err = t.ReadLine(); err != nil {
			return err
		}
	}

	// trailers until the blank line
	mh, err := t.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return err
	}

	if len(mh) > 0 {
		r.SetTrailers(http.Header(mh))
	}

	return nil
}

func (o *Conn) copyStream(s *libexc.Stream, r io.Reader) error {
	b := make([]byte, 32*1024)

	for {
		n, e := r.Read(b)

		if n > 0 {
			c := make([]byte, n)
			copy(c, b[:n])

			if x := s.Write(context.Background(), c); x != nil {
				// consumer cancelled: drop the rest, the reset closes us
				return nil
			}
		}

		if e == io.EOF {
			return nil
		} else if e != nil {
			return e
		}
	}
}

func (o *Conn) shouldClose(hdr http.Header) bool {
	c := strings.ToLower(hdr.Get("Connection"))

	if o.v == libptc.VersionHTTP10 {
		return !strings.Contains(c, "keep-alive")
	}

	return strings.Contains(c, "close")
}

// upgrade swaps the pipeline to HTTP/2 after a 101 Switching Protocols.
// The exchange is reassigned to stream 1 by the upgrade func.
func (o *Conn) upgrade(f *inflight) bool {
	o.m.Lock()
	u := o.up
	o.m.Unlock()

	o.popHead()

	if u == nil {
		f.e.Dispose(ErrorHttpUpgrade.Error(nil))
		o.close()
		return false
	}

	n, err := u(f.e)
	if err != nil {
		o.logger().Entry(loglvl.ErrorLevel, "h2c pipeline swap").ErrorAdd(true, err).Log()
		f.e.Dispose(ErrorHttpUpgrade.Error(err))
		o.close()
		return false
	}

	o.swapPipeline(n)

	// forward exchanges that were pipelined behind the upgrade request
	o.m.Lock()
	q := o.q
	o.q = nil
	o.m.Unlock()

	for _, p := range q {
		if e := n.Send(p.e.Context(), p.e); e != nil {
			p.e.Dispose(e)
		}
	}

	return false
}
