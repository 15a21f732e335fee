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
	"io"
	"strconv"
	"strings"

	liberr "github.com/nabbar/golib/errors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	libexc "github.com/nabbar/httpclient/exchange"
)

// Send maps the exchange onto a fresh stream and serializes its request.
func (o *Conn) Send(ctx context.Context, ex *libexc.Exchange) liberr.Error {
	if ex == nil || ex.Request() == nil {
		return ErrorParamsEmpty.Error(nil)
	}

	o.m.Lock()

	if o.cd {
		o.m.Unlock()
		return ErrorConnClosed.Error(nil)
	}

	if o.cg {
		o.m.Unlock()
		return ErrorGoAway.Error(nil)
	}

	if len(o.st) >= o.mx {
		o.m.Unlock()
		return ErrorConnBusy.Error(nil)
	}

	s := &stream{
		i:  o.id,
		e:  ex,
		wn: o.wp,
	}

	o.id += 2
	o.st[s.i] = s
	o.m.Unlock()

	ex.SetCarrier(o)
	ex.Init()

	req := ex.Request()
	bdy := req.Body()

	var (
		src io.ReadCloser
		err liberr.Error
	)

	if bdy != nil {
		if src, err = bdy.Open(); err != nil {
			o.forget(s.i)
			return err
		}
	}

	ex.Start()

	blk := o.encodeHeaders(ex, bdy != nil)

	werr := o.l.PostWait(ctx, func() {
		if e := o.fr.WriteHeaders(http2.HeadersFrameParam{
			StreamID:      s.i,
			BlockFragment: blk,
			EndStream:     src == nil,
			EndHeaders:    true,
		}); e != nil {
			err = ErrorHttpClient.Error(e)
			return
		}

		if e := o.bw.Flush(); e != nil {
			err = ErrorHttpClient.Error(e)
		}
	})

	if werr != nil {
		o.forget(s.i)
		return ErrorConnClosed.Error(werr)
	}

	if err != nil {
		o.forget(s.i)
		o.close(err)
		return err
	}

	if src != nil {
		o.wg.Add(1)
		go o.writeBody(s, src)
	}

	return nil
}

// encodeHeaders builds the HPACK block: pseudo headers first, then regular
// ones lowercased, connection-specific fields dropped.
func (o *Conn) encodeHeaders(ex *libexc.Exchange, hasBody bool) []byte {
	req := ex.Request()

	o.hm.Lock()
	defer o.hm.Unlock()

	o.hb.Reset()

	sch := req.Scheme()
	if len(sch) == 0 {
		if o.t {
			sch = "https"
		} else {
			sch = "http"
		}
	}

	o.hf(":method", req.Method())
	o.hf(":scheme", sch)
	o.hf(":authority", req.Authority())
	o.hf(":path", req.Target())

	hdr := req.Header()

	if hasBody {
		if b := req.Body(); b != nil {
			if l := b.Length(); l >= 0 {
				hdr.Set("Content-Length", strconv.FormatInt(l, 10))
			}

			if c := b.ContentType(); len(c) > 0 && len(hdr.Get("Content-Type")) == 0 {
				hdr.Set("Content-Type", c)
			}
		}
	}

	for k, vs := range hdr {
		n := strings.ToLower(k)

		switch n {
		case "connection", "keep-alive", "proxy-connection",
			"transfer-encoding", "upgrade", "http2-settings", "host":
			continue
		}

		for _, v := range vs {
			o.hf(n, v)
		}
	}

	b := make([]byte, o.hb.Len())
	copy(b, o.hb.Bytes())

	return b
}

func (o *Conn) hf(name, value string) {
	_ = o.he.WriteField(hpack.HeaderField{Name: name, Value: value})
}

// writeBody streams the request body as DATA frames under flow control.
func (o *Conn) writeBody(s *stream, src io.ReadCloser) {
	defer o.wg.Done()

	defer func() {
		_ = src.Close()
	}()

	b := make([]byte, 16*1024)

	for {
		n, e := src.Read(b)

		if n > 0 {
			if !o.writeData(s, b[:n]) {
				return
			}
		}

		if e == io.EOF {
			break
		} else if e != nil {
			s.e.Reset(libexc.ResetInternalError)
			return
		}
	}

	_ = o.l.Post(func() {
		_ = o.fr.WriteData(s.i, true, nil)
		_ = o.bw.Flush()
	})

	s.el = true
}

// writeData sends one chunk, waiting on the connection and stream send
// windows. It returns false when the stream died.
func (o *Conn) writeData(s *stream, p []byte) bool {
	for len(p) > 0 {
		o.m.Lock()

		for !s.dd && !o.cd && (o.wo <= 0 || s.wn <= 0) {
			o.cv.Wait()
		}

		if s.dd || o.cd {
			o.m.Unlock()
			return false
		}

		n := int64(len(p))

		if n > o.wo {
			n = o.wo
		}

		if n > s.wn {
			n = s.wn
		}

		if m := int64(o.g.maxFrameSize()); n > m {
			n = m
		}

		o.wo -= n
		s.wn -= n
		o.m.Unlock()

		c := make([]byte, n)
		copy(c, p[:n])
		p = p[n:]

		if e := o.l.PostWait(context.Background(), func() {
			_ = o.fr.WriteData(s.i, false, c)
			_ = o.bw.Flush()
		}); e != nil {
			return false
		}
	}

	return true
}
