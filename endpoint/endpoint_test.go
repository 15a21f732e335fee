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

package endpoint_test

import (
	"context"
	"io"
	"net/http"
	"time"

	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"
	libend "github.com/nabbar/httpclient/endpoint"
	libexc "github.com/nabbar/httpclient/exchange"
	libitc "github.com/nabbar/httpclient/intercept"
	libpol "github.com/nabbar/httpclient/pool"
	libtpt "github.com/nabbar/httpclient/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newEndpoint(remote string, chain ...libitc.Interceptor) libend.Endpoint {
	ep, err := libend.New(libend.Config{
		Transport: libtpt.Config{RemoteAddress: remote},
		Pool:      libpol.Config{MaxSize: 2, BufferSize: -1},
		Protocols: []string{"http/1.1"},
	}, nil, chain...)

	Expect(err).ToNot(HaveOccurred())

	return ep
}

var _ = Describe("Endpoint", func() {
	It("should refuse a relative request target", func() {
		ep := newEndpoint(serverAddr())
		defer ep.Shutdown()

		_, err := ep.Exchange(context.Background(), http.MethodGet, "hello")
		Expect(err).To(HaveOccurred())
		Expect(err.IsCode(libend.ErrorInvalidTarget)).To(BeTrue())
	})

	It("should exchange GET /hello end to end", func() {
		ep := newEndpoint(serverAddr())
		defer ep.Shutdown()

		ex, err := ep.Exchange(context.Background(), http.MethodGet, "/hello")
		Expect(err).ToNot(HaveOccurred())

		rsp, err := ex.Send(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(rsp.StatusCode()).To(Equal(200))

		b, e := rsp.Body()
		Expect(e).ToNot(HaveOccurred())

		d, e := io.ReadAll(b)
		Expect(e).ToNot(HaveOccurred())
		Expect(string(d)).To(Equal("Hi"))
	})

	It("should short-circuit through the interceptor without touching the wire", func() {
		// the remote address points nowhere reachable: any dial would fail
		ep := newEndpoint("127.0.0.1:1", func(ctx context.Context, ie *libitc.Exchange) (*libitc.Exchange, liberr.Error) {
			Expect(ie.Response().SetStatus(http.StatusTeapot)).ToNot(HaveOccurred())
			Expect(ie.Response().SetBody([]byte("teapot"))).ToNot(HaveOccurred())
			return nil, nil
		})
		defer ep.Shutdown()

		ex, err := ep.Exchange(context.Background(), http.MethodGet, "/hello")
		Expect(err).ToNot(HaveOccurred())

		rsp, err := ex.Send(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(rsp.StatusCode()).To(Equal(http.StatusTeapot))

		b, e := rsp.Body()
		Expect(e).ToNot(HaveOccurred())

		d, e := io.ReadAll(b)
		Expect(e).ToNot(HaveOccurred())
		Expect(string(d)).To(Equal("teapot"))

		Expect(ep.ActiveRequests()).To(Equal(0))
	})

	It("should let interceptors mutate the request before send", func() {
		ep := newEndpoint(serverAddr(), func(ctx context.Context, ie *libitc.Exchange) (*libitc.Exchange, liberr.Error) {
			Expect(ie.Request().HeaderSet("X-Intercepted", "yes")).ToNot(HaveOccurred())
			return ie, nil
		})
		defer ep.Shutdown()

		ex, err := ep.Exchange(context.Background(), http.MethodGet, "/hello")
		Expect(err).ToNot(HaveOccurred())

		rsp, err := ex.Send(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(rsp.StatusCode()).To(Equal(200))
		Expect(ex.Request().HeaderGet("X-Intercepted")).To(Equal("yes"))
	})

	It("should fail with a timeout when the server withholds the response", func() {
		ep, err := libend.New(libend.Config{
			Transport:      libtpt.Config{RemoteAddress: serverAddr()},
			Pool:           libpol.Config{MaxSize: 1, BufferSize: -1},
			Protocols:      []string{"http/1.1"},
			RequestTimeout: libdur.ParseDuration(50 * time.Millisecond),
		}, nil)
		Expect(err).ToNot(HaveOccurred())
		defer ep.Shutdown()

		ex, err := ep.Exchange(context.Background(), http.MethodGet, "/slow")
		Expect(err).ToNot(HaveOccurred())

		t0 := time.Now()

		_, err = ex.Send(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(err.IsCode(libexc.ErrorTimeout)).To(BeTrue())
		Expect(time.Since(t0)).To(BeNumerically("<", 300*time.Millisecond))
	})

	It("should refuse exchanges after shutdown", func() {
		ep := newEndpoint(serverAddr())
		ep.Shutdown()

		_, err := ep.Exchange(context.Background(), http.MethodGet, "/hello")
		Expect(err).To(HaveOccurred())
		Expect(err.IsCode(libend.ErrorEndpointClosed)).To(BeTrue())
	})

	It("should apply the default user agent", func() {
		ep := newEndpoint(serverAddr())
		defer ep.Shutdown()

		ex, err := ep.Exchange(context.Background(), http.MethodGet, "/hello")
		Expect(err).ToNot(HaveOccurred())
		Expect(ex.Request().HeaderGet("User-Agent")).To(Equal(libend.DefaultUserAgent))
	})
})
