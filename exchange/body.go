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

package exchange

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"strings"
	"sync"

	libmim "github.com/gabriel-vasile/mimetype"
	libuid "github.com/hashicorp/go-uuid"
	liberr "github.com/nabbar/golib/errors"
)

const urlEncodedContentType = "application/x-www-form-urlencoded; charset=UTF-8"

// Part is one multipart form part.
type Part struct {
	Name        string
	Filename    string
	ContentType string
	Data        io.Reader
}

// Body is an outbound request payload. The underlying data source is opened
// at most once, by the connection that serializes the request; transformers
// compose in declaration order.
type Body struct {
	m sync.Mutex
	s func() (io.ReadCloser, error)
	l int64
	c string
	f []FuncTransform
	u bool
}

// NewBodyRaw wraps a raw byte stream. A negative length means unknown and
// forces chunked transfer on HTTP/1.x.
func NewBodyRaw(r io.Reader, length int64) *Body {
	return &Body{
		s: func() (io.ReadCloser, error) {
			if c, k := r.(io.ReadCloser); k {
				return c, nil
			}
			return io.NopCloser(r), nil
		},
		l: length,
	}
}

// NewBodyString wraps a character sequence.
func NewBodyString(s string) *Body {
	return &Body{
		s: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(s)), nil
		},
		l: int64(len(s)),
	}
}

// NewBodyResource streams a file. Its size populates Content-Length and its
// detected media type populates Content-Type unless the caller set them.
func NewBodyResource(name string) (*Body, liberr.Error) {
	i, err := os.Stat(name)
	if err != nil {
		return nil, ErrorBodyResource.Error(err)
	}

	var ctype string
	if m, e := libmim.DetectFile(name); e == nil && m != nil {
		ctype = m.String()
	}

	return &Body{
		s: func() (io.ReadCloser, error) {
			return os.Open(name)
		},
		l: i.Size(),
		c: ctype,
	}, nil
}

// NewBodyURLEncoded serializes form parameters, setting the url-encoded
// content type when the caller did not.
func NewBodyURLEncoded(v url.Values) *Body {
	s := v.Encode()

	return &Body{
		s: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(s)), nil
		},
		l: int64(len(s)),
		c: urlEncodedContentType,
	}
}

// NewBodyMultipart serializes form parts with a generated boundary, setting
// the multipart content type when the caller did not.
func NewBodyMultipart(parts []Part) (*Body, liberr.Error) {
	bnd, err := libuid.GenerateUUID()
	if err != nil {
		return nil, ErrorBodyResource.Error(err)
	}

	bnd = "inverno-" + bnd

	return &Body{
		s: func() (io.ReadCloser, error) {
			buf := bytes.NewBuffer(make([]byte, 0, 4096))
			w := multipart.NewWriter(buf)

			if e := w.SetBoundary(bnd); e != nil {
				return nil, e
			}

			for _, p := range parts {
				var (
					pw io.Writer
					e  error
				)

				if len(p.Filename) > 0 {
					pw, e = w.CreateFormFile(p.Name, p.Filename)
				} else {
					pw, e = w.CreateFormField(p.Name)
				}

				if e != nil {
					return nil, e
				}

				if _, e = io.Copy(pw, p.Data); e != nil {
					return nil, e
				}
			}

			if e := w.Close(); e != nil {
				return nil, e
			}

			return io.NopCloser(buf), nil
		},
		l: -1,
		c: "multipart/form-data; boundary=" + bnd,
	}, nil
}

// Length returns the body length, or a negative value when unknown.
func (b *Body) Length() int64 {
	if b == nil {
		return 0
	}

	b.m.Lock()
	defer b.m.Unlock()

	return b.l
}

// ContentType returns the content type hint discovered for this body.
func (b *Body) ContentType() string {
	if b == nil {
		return ""
	}

	b.m.Lock()
	defer b.m.Unlock()

	return b.c
}

// Transform appends a body transformer. Transformed bodies lose their length
// hint and fall back to chunked transfer.
func (b *Body) Transform(f FuncTransform) liberr.Error {
	b.m.Lock()
	defer b.m.Unlock()

	if b.u {
		return ErrorBodyConsumed.Error(nil)
	}

	b.f = append(b.f, f)
	b.l = -1

	return nil
}

// Open subscribes to the body data. A body accepts exactly one subscription.
func (b *Body) Open() (io.ReadCloser, liberr.Error) {
	b.m.Lock()

	if b.u {
		b.m.Unlock()
		return nil, ErrorBodyConsumed.Error(nil)
	}

	b.u = true
	s := b.s
	f := b.f
	b.m.Unlock()

	r, err := s()
	if err != nil {
		return nil, ErrorBodyResource.Error(err)
	}

	for _, t := range f {
		r = t(r)
	}

	return r, nil
}
