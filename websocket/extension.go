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
	"bytes"
	"io"
	"strings"

	libfla "github.com/klauspost/compress/flate"
	liberr "github.com/nabbar/golib/errors"
)

const (
	extPerMessage = "permessage-deflate"
	extPerFrame   = "x-webkit-deflate-frame"
)

// extensions is the negotiated compression mode of a connection.
type extensions struct {
	perMessage bool
	perFrame   bool
}

func offerExtensions(cfg Config) string {
	var o []string

	if cfg.PerMessageDeflate {
		e := extPerMessage

		if cfg.ClientNoContextTakeover {
			e += "; client_no_context_takeover"
		}

		if cfg.ServerNoContextTakeover {
			e += "; server_no_context_takeover"
		}

		o = append(o, e)
	}

	if cfg.PerFrameDeflate {
		o = append(o, extPerFrame)
	}

	return strings.Join(o, ", ")
}

func acceptExtensions(cfg Config, hdr string) (extensions, liberr.Error) {
	var x extensions

	if len(hdr) == 0 {
		return x, nil
	}

	for _, e := range strings.Split(hdr, ",") {
		n := strings.TrimSpace(strings.Split(e, ";")[0])

		switch n {
		case extPerMessage:
			if !cfg.PerMessageDeflate {
				return x, ErrorHandshake.Error(nil)
			}

			x.perMessage = true

		case extPerFrame:
			if !cfg.PerFrameDeflate {
				return x, ErrorHandshake.Error(nil)
			}

			x.perFrame = true

		default:
			return x, ErrorHandshake.Error(nil)
		}
	}

	return x, nil
}

var deflateTail = []byte{0x00, 0x00, 0xff, 0xff}

// deflatePayload compresses a payload for RSV1 framing, without context
// takeover: a fresh deflate stream per payload, sync-flush tail stripped.
func deflatePayload(p []byte) ([]byte, error) {
	var b bytes.Buffer

	w, err := libfla.NewWriter(&b, libfla.DefaultCompression)
	if err != nil {
		return nil, err
	}

	if _, err = w.Write(p); err != nil {
		return nil, err
	}

	if err = w.Flush(); err != nil {
		return nil, err
	}

	o := b.Bytes()
	o = bytes.TrimSuffix(o, deflateTail)

	return o, nil
}

// inflatePayload restores a compressed payload: the stripped sync-flush tail
// is appended back before inflating.
func inflatePayload(p []byte) ([]byte, error) {
	s := make([]byte, 0, len(p)+len(deflateTail))
	s = append(s, p...)
	s = append(s, deflateTail...)

	r := libfla.NewReader(bytes.NewReader(s))

	defer func() {
		_ = r.Close()
	}()

	return io.ReadAll(r)
}
