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
	"net/http"
	"strconv"
	"strings"

	loglvl "github.com/nabbar/golib/logger/level"
	"golang.org/x/net/http2"

	libcdg "github.com/nabbar/httpclient/coding"
	libexc "github.com/nabbar/httpclient/exchange"
)

// stream is one client-initiated HTTP/2 stream carrying an exchange.
type stream struct {
	i  uint32
	e  *libexc.Exchange
	s  *libexc.Stream
	r  *libexc.Response
	wn int64 // send window
	hd bool  // response headers received
	el bool  // END_STREAM sent
	dd bool  // dead, body writer must stop
}

func (s *stream) releaseWriter() {
	s.dd = true
}

func (o *Conn) readLoop() {
	for {
		f, err := o.fr.ReadFrame()
		if err != nil {
			o.close(ErrorHttpClient.Error(err))
			return
		}

		switch f := f.(type) {
		case *http2.MetaHeadersFrame:
			o.onHeaders(f)
		case *http2.DataFrame:
			o.onData(f)
		case *http2.RSTStreamFrame:
			o.onRst(f)
		case *http2.SettingsFrame:
			o.onSettings(f)
		case *http2.WindowUpdateFrame:
			o.onWindowUpdate(f)
		case *http2.GoAwayFrame:
			o.onGoAway(f)
		case *http2.PingFrame:
			if !f.IsAck() {
				d := f.Data
				_ = o.l.Post(func() {
					_ = o.fr.WritePing(true, d)
					_ = o.bw.Flush()
				})
			}
		}

		o.m.Lock()
		d := o.cd
		o.m.Unlock()

		if d {
			return
		}
	}
}

func (o *Conn) lookup(id uint32) *stream {
	o.m.Lock()
	defer o.m.Unlock()

	return o.st[id]
}

func (o *Conn) forget(id uint32) {
	o.m.Lock()
	delete(o.st, id)
	o.m.Unlock()
}

func (o *Conn) onHeaders(f *http2.MetaHeadersFrame) {
	s := o.lookup(f.StreamID)
	if s == nil {
		return
	}

	if s.hd {
		// trailing HEADERS after DATA
		t := make(http.Header)

		for _, h := range f.Fields {
			if !strings.HasPrefix(h.Name, ":") {
				t.Add(h.Name, h.Value)
			}
		}

		if s.r != nil {
			s.r.SetTrailers(t)
		}

		o.finish(s)
		return
	}

	s.hd = true

	var (
		st  int
		hdr = make(http.Header)
	)

	for _, h := range f.Fields {
		if h.Name == ":status" {
			st, _ = strconv.Atoi(h.Value)
		} else if !strings.HasPrefix(h.Name, ":") {
			hdr.Add(h.Name, h.Value)
		}
	}

	// interim responses carry no exchange completion
	if st >= 100 && st < 200 {
		s.hd = false
		return
	}

	bs := libexc.NewStream(o.g.BodyBuffer)
	bs.OnCancel(func() {
		s.e.Reset(libexc.ResetCancel)
	})

	id := s.i
	bs.OnConsumed(func(n int) {
		_ = o.l.Post(func() {
			_ = o.fr.WriteWindowUpdate(0, uint32(n))
			_ = o.fr.WriteWindowUpdate(id, uint32(n))
			_ = o.bw.Flush()
		})
	})

	if d := libcdg.Decoder(hdr.Get("Content-Encoding")); d != nil {
		_ = bs.Transform(d)
	}

	s.s = bs
	s.r = libexc.NewResponse(st, hdr, bs)
	s.e.EmitResponse(s.r)

	if f.StreamEnded() {
		o.finish(s)
	}
}

func (o *Conn) onData(f *http2.DataFrame) {
	s := o.lookup(f.StreamID)
	if s == nil || s.s == nil {
		return
	}

	d := f.Data()

	if len(d) > 0 {
		c := make([]byte, len(d))
		copy(c, d)

		if err := s.s.Write(context.Background(), c); err != nil {
			// consumer cancelled, reset path already engaged
			o.forget(s.i)
			return
		}
	}

	if f.StreamEnded() {
		o.finish(s)
	}
}

// finish completes a stream normally: trailers (if any) were recorded, the
// body stream ends, the stream id is forgotten.
func (o *Conn) finish(s *stream) {
	if s.s != nil {
		s.s.CloseSend()
	} else if s.r == nil {
		s.e.Dispose(ErrorHttpClient.Error(nil))
	}

	s.releaseWriter()
	o.forget(s.i)
	o.cv.Broadcast()
}

func (o *Conn) onRst(f *http2.RSTStreamFrame) {
	s := o.lookup(f.StreamID)
	if s == nil {
		return
	}

	o.forget(s.i)
	s.releaseWriter()
	o.cv.Broadcast()

	e := ErrorStreamReset.Error(nil)
	s.e.Dispose(e)

	if s.s != nil {
		s.s.Fail(e)
	}
}

func (o *Conn) onSettings(f *http2.SettingsFrame) {
	if f.IsAck() {
		return
	}

	var cap = -1

	_ = f.ForeachSetting(func(s http2.Setting) error {
		switch s.ID {
		case http2.SettingMaxConcurrentStreams:
			o.m.Lock()
			o.sx = true
			o.mx = o.g.maxConcurrent()

			if int(s.Val) < o.mx {
				o.mx = int(s.Val)
			}

			cap = o.mx
			o.m.Unlock()

		case http2.SettingInitialWindowSize:
			o.m.Lock()
			d := int64(s.Val) - o.wp
			o.wp = int64(s.Val)

			for _, x := range o.st {
				x.wn += d
			}
			o.m.Unlock()
			o.cv.Broadcast()
		}

		return nil
	})

	_ = o.l.Post(func() {
		_ = o.fr.WriteSettingsAck()
		_ = o.bw.Flush()
	})

	if cap >= 0 {
		o.notifyCapacity(cap)
	}
}

func (o *Conn) onWindowUpdate(f *http2.WindowUpdateFrame) {
	o.m.Lock()

	if f.StreamID == 0 {
		o.wo += int64(f.Increment)
	} else if s := o.st[f.StreamID]; s != nil {
		s.wn += int64(f.Increment)
	}

	o.m.Unlock()
	o.cv.Broadcast()
}

func (o *Conn) onGoAway(f *http2.GoAwayFrame) {
	o.logger().Entry(loglvl.InfoLevel, "received GOAWAY").FieldAdd("last_stream", f.LastStreamID).Log()

	o.m.Lock()
	o.cg = true

	var drop []*stream

	for id, s := range o.st {
		if id > f.LastStreamID {
			delete(o.st, id)
			drop = append(drop, s)
		}
	}

	n := len(o.st)
	o.m.Unlock()

	e := ErrorGoAway.Error(nil)

	for _, s := range drop {
		s.releaseWriter()
		s.e.Dispose(e)

		if s.s != nil {
			s.s.Fail(e)
		}
	}

	o.cv.Broadcast()

	if f.ErrCode != http2.ErrCodeNo || n == 0 {
		o.close(e)
	}
}
