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

// Package coding maps HTTP content codings to stream decoders. Known tokens:
// gzip, deflate, br, zstd, identity.
package coding

import (
	"io"

	libbr "github.com/andybalholm/brotli"
	libfla "github.com/klauspost/compress/flate"
	libgzp "github.com/klauspost/compress/gzip"
	libzst "github.com/klauspost/compress/zstd"

	libexc "github.com/nabbar/httpclient/exchange"
)

// Tokens returns the codings advertised in Accept-Encoding when
// decompression is enabled.
func Tokens() string {
	return "gzip, deflate, br, zstd"
}

// Decoder returns the body transformer decoding the given Content-Encoding,
// or nil when the token is identity, empty, or unknown.
func Decoder(token string) libexc.FuncTransform {
	switch token {
	case "gzip":
		return func(r io.ReadCloser) io.ReadCloser {
			return &lazyDecoder{s: r, n: func(s io.Reader) (io.Reader, error) {
				return libgzp.NewReader(s)
			}}
		}

	case "deflate":
		return func(r io.ReadCloser) io.ReadCloser {
			return &lazyDecoder{s: r, n: func(s io.Reader) (io.Reader, error) {
				return libfla.NewReader(s), nil
			}}
		}

	case "br":
		return func(r io.ReadCloser) io.ReadCloser {
			return &lazyDecoder{s: r, n: func(s io.Reader) (io.Reader, error) {
				return libbr.NewReader(s), nil
			}}
		}

	case "zstd":
		return func(r io.ReadCloser) io.ReadCloser {
			return &lazyDecoder{s: r, n: func(s io.Reader) (io.Reader, error) {
				if d, e := libzst.NewReader(s); e != nil {
					return nil, e
				} else {
					return d.IOReadCloser(), nil
				}
			}}
		}
	}

	return nil
}

// lazyDecoder defers decoder construction to the first read so that header
// probing happens on the consumer goroutine, honoring its demand.
type lazyDecoder struct {
	s io.ReadCloser
	n func(io.Reader) (io.Reader, error)
	r io.Reader
}

func (d *lazyDecoder) Read(p []byte) (int, error) {
	if d.r == nil {
		if r, e := d.n(d.s); e != nil {
			return 0, e
		} else {
			d.r = r
		}
	}

	return d.r.Read(p)
}

func (d *lazyDecoder) Close() error {
	return d.s.Close()
}
