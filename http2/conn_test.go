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

package http2_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	libexc "github.com/nabbar/httpclient/exchange"
	libh2 "github.com/nabbar/httpclient/http2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newExchange(method, target, authority string) *libexc.Exchange {
	r, err := libexc.NewRequest(method, target)
	Expect(err).ToNot(HaveOccurred())

	Expect(r.SetAuthority(authority)).ToNot(HaveOccurred())

	return libexc.New(context.Background(), r, 0)
}

var _ = Describe("HTTP/2 Connection", func() {
	It("should exchange GET /hello with prior knowledge", func() {
		srv := newH2Server(0, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Proto).To(Equal("HTTP/2.0"))
			Expect(r.URL.Path).To(Equal("/hello"))

			_, _ = io.WriteString(w, "Hi")
		}))
		defer srv.close()

		cn, err := libh2.New(srv.dial(), false, libh2.Config{}, nil)
		Expect(err).ToNot(HaveOccurred())
		defer cn.Shutdown()

		ex := newExchange(http.MethodGet, "/hello", srv.addr())
		Expect(cn.Send(context.Background(), ex)).ToNot(HaveOccurred())

		rsp, e := ex.Await(context.Background())
		Expect(e).ToNot(HaveOccurred())
		Expect(rsp.StatusCode()).To(Equal(200))

		b, x := rsp.Body()
		Expect(x).ToNot(HaveOccurred())

		d, x := io.ReadAll(b)
		Expect(x).ToNot(HaveOccurred())
		Expect(string(d)).To(Equal("Hi"))
	})

	It("should cap concurrency to the server MAX_CONCURRENT_STREAMS", func() {
		srv := newH2Server(3, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer srv.close()

		cn, err := libh2.New(srv.dial(), false, libh2.Config{}, nil)
		Expect(err).ToNot(HaveOccurred())
		defer cn.Shutdown()

		got := make(chan int, 4)
		cn.RegisterOnCapacity(func(n int) {
			got <- n
		})

		Eventually(func() int {
			return cn.MaxConcurrent()
		}, time.Second).Should(Equal(3))
	})

	It("should stream a request body and read the echo", func() {
		srv := newH2Server(0, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, _ := io.ReadAll(r.Body)
			_, _ = w.Write(d)
		}))
		defer srv.close()

		cn, err := libh2.New(srv.dial(), false, libh2.Config{}, nil)
		Expect(err).ToNot(HaveOccurred())
		defer cn.Shutdown()

		ex := newExchange(http.MethodPost, "/echo", srv.addr())
		Expect(ex.Request().SetBody(libexc.NewBodyString(strings.Repeat("data-", 1000)))).ToNot(HaveOccurred())

		Expect(cn.Send(context.Background(), ex)).ToNot(HaveOccurred())

		rsp, e := ex.Await(context.Background())
		Expect(e).ToNot(HaveOccurred())

		b, x := rsp.Body()
		Expect(x).ToNot(HaveOccurred())

		d, x := io.ReadAll(b)
		Expect(x).ToNot(HaveOccurred())
		Expect(string(d)).To(Equal(strings.Repeat("data-", 1000)))
	})

	It("should surface trailers after the body completed", func() {
		srv := newH2Server(0, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Trailer", "X-Check")
			_, _ = io.WriteString(w, "Hi")
			w.Header().Set("X-Check", "yes")
		}))
		defer srv.close()

		cn, err := libh2.New(srv.dial(), false, libh2.Config{}, nil)
		Expect(err).ToNot(HaveOccurred())
		defer cn.Shutdown()

		ex := newExchange(http.MethodGet, "/hello", srv.addr())
		Expect(cn.Send(context.Background(), ex)).ToNot(HaveOccurred())

		rsp, e := ex.Await(context.Background())
		Expect(e).ToNot(HaveOccurred())
		Expect(rsp.Trailers()).To(BeNil())

		b, x := rsp.Body()
		Expect(x).ToNot(HaveOccurred())

		_, x = io.ReadAll(b)
		Expect(x).ToNot(HaveOccurred())

		Eventually(func() http.Header {
			return rsp.Trailers()
		}, time.Second).ShouldNot(BeNil())
		Expect(rsp.Trailers().Get("X-Check")).To(Equal("yes"))
	})

	It("should reset the stream when the body subscription is cancelled", func() {
		release := make(chan struct{})
		gone := make(chan struct{}, 1)

		srv := newH2Server(0, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "partial")

			if f, k := w.(http.Flusher); k {
				f.Flush()
			}

			select {
			case <-r.Context().Done():
				gone <- struct{}{}
			case <-release:
			}
		}))
		defer srv.close()

		cn, err := libh2.New(srv.dial(), false, libh2.Config{}, nil)
		Expect(err).ToNot(HaveOccurred())
		defer cn.Shutdown()
		defer close(release)

		ex := newExchange(http.MethodGet, "/hello", srv.addr())
		Expect(cn.Send(context.Background(), ex)).ToNot(HaveOccurred())

		rsp, e := ex.Await(context.Background())
		Expect(e).ToNot(HaveOccurred())

		b, x := rsp.Body()
		Expect(x).ToNot(HaveOccurred())

		// cancelling the subscription resets the stream with CANCEL
		Expect(b.Close()).ToNot(HaveOccurred())

		Eventually(gone, time.Second).Should(Receive())
	})
})
