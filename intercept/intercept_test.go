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

package intercept_test

import (
	"context"
	"io"
	"net/http"

	liberr "github.com/nabbar/golib/errors"
	libexc "github.com/nabbar/httpclient/exchange"
	libitc "github.com/nabbar/httpclient/intercept"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Interceptor Chain", func() {
	newIE := func() *libitc.Exchange {
		r, err := libexc.NewRequest(http.MethodGet, "/hello")
		Expect(err).ToNot(HaveOccurred())

		return libitc.NewExchange(r)
	}

	It("should compose left to right", func() {
		var seen []string

		mk := func(n string) libitc.Interceptor {
			return func(ctx context.Context, ie *libitc.Exchange) (*libitc.Exchange, liberr.Error) {
				seen = append(seen, n)
				return ie, nil
			}
		}

		ie := newIE()

		n, err := libitc.Compose(mk("a"), mk("b"), mk("c"))(context.Background(), ie)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).ToNot(BeNil())
		Expect(seen).To(Equal([]string{"a", "b", "c"}))
	})

	It("should short-circuit with the synthesized response", func() {
		ie := newIE()

		chain := libitc.Compose(func(ctx context.Context, x *libitc.Exchange) (*libitc.Exchange, liberr.Error) {
			Expect(x.Response().SetStatus(http.StatusTeapot)).ToNot(HaveOccurred())
			Expect(x.Response().SetBody([]byte("teapot"))).ToNot(HaveOccurred())
			return nil, nil
		}, func(ctx context.Context, x *libitc.Exchange) (*libitc.Exchange, liberr.Error) {
			Fail("second interceptor must not run after short-circuit")
			return x, nil
		})

		n, err := chain(context.Background(), ie)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(BeNil())

		rsp := ie.Response().Build()
		Expect(rsp.StatusCode()).To(Equal(http.StatusTeapot))

		b, e := rsp.Body()
		Expect(e).ToNot(HaveOccurred())

		d, e := io.ReadAll(b)
		Expect(e).ToNot(HaveOccurred())
		Expect(string(d)).To(Equal("teapot"))
	})

	It("should apply collected transformers to the synthesized data", func() {
		ie := newIE()

		Expect(ie.Response().SetBody([]byte("body"))).ToNot(HaveOccurred())
		Expect(ie.Response().Transform(func(r io.ReadCloser) io.ReadCloser {
			return upperReader{r}
		})).ToNot(HaveOccurred())

		rsp := ie.Response().Build()

		b, e := rsp.Body()
		Expect(e).ToNot(HaveOccurred())

		d, e := io.ReadAll(b)
		Expect(e).ToNot(HaveOccurred())
		Expect(string(d)).To(Equal("BODY"))
	})

	It("should freeze the proxy once dispatched", func() {
		ie := newIE()
		ie.MarkDispatched()

		Expect(ie.Response().SetStatus(http.StatusTeapot)).To(HaveOccurred())
		Expect(ie.Response().SetBody([]byte("x"))).To(HaveOccurred())
		Expect(ie.Response().Transform(nil)).To(HaveOccurred())
	})
})

type upperReader struct {
	r io.ReadCloser
}

func (u upperReader) Read(p []byte) (int, error) {
	n, e := u.r.Read(p)

	for i := 0; i < n; i++ {
		if p[i] >= 'a' && p[i] <= 'z' {
			p[i] -= 32
		}
	}

	return n, e
}

func (u upperReader) Close() error {
	return u.r.Close()
}
