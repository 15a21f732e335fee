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
	"encoding/base64"
	"io"
	"strconv"

	liberr "github.com/nabbar/golib/errors"
	"golang.org/x/net/http/httpguts"

	libptc "github.com/nabbar/httpclient/protocol"
)

const crlf = "\r\n"

// writeExchange serializes the request head and body on the wire. Runs on
// the event loop.
func (o *Conn) writeExchange(f *inflight) liberr.Error {
	var (
		ex  = f.e
		req = ex.Request()
	)

	ex.Start()

	var (
		bdy io.ReadCloser
		lng int64
		err liberr.Error
	)

	if b := req.Body(); b != nil {
		if bdy, err = b.Open(); err != nil {
			return err
		}

		lng = b.Length()
	}

	h := req.Header()

	if b := req.Body(); b != nil {
		if c := b.ContentType(); len(c) > 0 && len(h.Get("Content-Type")) == 0 {
			h.Set("Content-Type", c)
		}
	}

	chunked := false

	if bdy != nil {
		if lng >= 0 {
			h.Set("Content-Length", strconv.FormatInt(lng, 10))
		} else if o.v == libptc.VersionHTTP11 {
			h.Set("Transfer-Encoding", "chunked")
			chunked = true
		}
	}

	if f.u {
		h.Set("Upgrade", "h2c")
		h.Set("HTTP2-Settings", h2cSettingsPayload())
		h.Set("Connection", "Upgrade, HTTP2-Settings")
	} else if len(h.Get("Connection")) == 0 && o.v == libptc.VersionHTTP10 {
		h.Set("Connection", "keep-alive")
	}

	if len(h.Get("Host")) == 0 {
		h.Set("Host", req.Authority())
	}

	w := o.bw

	if _, e := w.WriteString(req.Method() + " " + req.Target() + " " + o.v.String() + crlf); e != nil {
		return ErrorHttpClient.Error(e)
	}

	for k, vs := range h {
		if !httpguts.ValidHeaderFieldName(k) {
			continue
		}

		for _, v := range vs {
			if !httpguts.ValidHeaderFieldValue(v) {
				continue
			}

			if _, e := w.WriteString(k + ": " + v + crlf); e != nil {
				return ErrorHttpClient.Error(e)
			}
		}
	}

	if _, e := w.WriteString(crlf); e != nil {
		return ErrorHttpClient.Error(e)
	}

	if bdy == nil {
		if e := w.Flush(); e != nil {
			return ErrorHttpClient.Error(e)
		}

		return nil
	}

	defer func() {
		_ = bdy.Close()
	}()

	if chunked {
		if e := o.writeChunked(bdy); e != nil {
			return e
		}
	} else if lng >= 0 {
		if n, e := io.CopyN(w, bdy, lng); e != nil || n != lng {
			return ErrorBodyWrite.Error(e)
		}
	} else {
		// HTTP/1.0 with unknown length: buffer is not possible on the wire,
		// stream until EOF and close after the exchange
		if _, e := io.Copy(w, bdy); e != nil {
			return ErrorBodyWrite.Error(e)
		}

		o.m.Lock()
		o.cg = true
		o.m.Unlock()
	}

	if e := w.Flush(); e != nil {
		return ErrorHttpClient.Error(e)
	}

	return nil
}

func (o *Conn) writeChunked(r io.Reader) liberr.Error {
	var (
		w = o.bw
		b = make([]byte, 32*1024)
	)

	for {
		n, e := r.Read(b)

		if n > 0 {
			if _, x := w.WriteString(strconv.FormatInt(int64(n), 16) + crlf); x != nil {
				return ErrorBodyWrite.Error(x)
			}

			if _, x := w.Write(b[:n]); x != nil {
				return ErrorBodyWrite.Error(x)
			}

			if _, x := w.WriteString(crlf); x != nil {
				return ErrorBodyWrite.Error(x)
			}

			if x := w.Flush(); x != nil {
				return ErrorBodyWrite.Error(x)
			}
		}

		if e == io.EOF {
			break
		} else if e != nil {
			return ErrorBodyWrite.Error(e)
		}
	}

	if _, e := w.WriteString("0" + crlf + crlf); e != nil {
		return ErrorBodyWrite.Error(e)
	}

	return nil
}

// h2cSettingsPayload encodes the HTTP2-Settings token: a base64url SETTINGS
// frame payload advertising SETTINGS_ENABLE_PUSH = 0.
func h2cSettingsPayload() string {
	p := []byte{0x00, 0x02, 0x00, 0x00, 0x00, 0x00}
	return base64.RawURLEncoding.EncodeToString(p)
}
