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

package http1_test

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/net/http2"

	libexc "github.com/nabbar/httpclient/exchange"
	libh1 "github.com/nabbar/httpclient/http1"
	libh2 "github.com/nabbar/httpclient/http2"
	libptc "github.com/nabbar/httpclient/protocol"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func bytesHasSuffix(b []byte, s string) bool {
	return len(b) >= len(s) && string(b[len(b)-len(s):]) == s
}

func newExchange(method, target string) *libexc.Exchange {
	r, err := libexc.NewRequest(method, target)
	Expect(err).ToNot(HaveOccurred())

	Expect(r.SetAuthority("h:8080")).ToNot(HaveOccurred())
	r.HeaderDefault("User-Agent", "Inverno/test")

	return libexc.New(context.Background(), r, 0)
}

var _ = Describe("HTTP/1.1 Connection", func() {
	It("should exchange GET /hello", func() {
		var seen []string

		srv := newRawServer(func(c net.Conn) {
			br := bufio.NewReader(c)
			seen = readRequest(br)

			_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nHi")
		})
		defer srv.close()

		cn := libh1.New(srv.dial(), false, libh1.Config{}, nil)
		defer cn.Shutdown()

		ex := newExchange(http.MethodGet, "/hello")
		Expect(cn.Send(context.Background(), ex)).ToNot(HaveOccurred())

		rsp, err := ex.Await(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(rsp.StatusCode()).To(Equal(200))

		b, e := rsp.Body()
		Expect(e).ToNot(HaveOccurred())

		d, e := io.ReadAll(b)
		Expect(e).ToNot(HaveOccurred())
		Expect(string(d)).To(Equal("Hi"))
		Expect(rsp.Trailers()).To(BeNil())

		Expect(seen[0]).To(Equal("GET /hello HTTP/1.1"))
		Expect(hasLinePrefix(seen, "Host: h:8080")).To(BeTrue())
		Expect(hasLinePrefix(seen, "User-Agent: Inverno/test")).To(BeTrue())
	})

	It("should match pipelined responses to requests in FIFO order", func() {
		srv := newRawServer(func(c net.Conn) {
			br := bufio.NewReader(c)

			for _, b := range []string{"r1", "r2", "r3"} {
				readRequest(br)
				_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\n"+b)
			}
		})
		defer srv.close()

		cn := libh1.New(srv.dial(), false, libh1.Config{MaxConcurrent: 3}, nil)
		defer cn.Shutdown()

		var xs []*libexc.Exchange

		for i := 0; i < 3; i++ {
			ex := newExchange(http.MethodGet, "/hello")
			Expect(cn.Send(context.Background(), ex)).ToNot(HaveOccurred())
			xs = append(xs, ex)
		}

		for i, want := range []string{"r1", "r2", "r3"} {
			rsp, err := xs[i].Await(context.Background())
			Expect(err).ToNot(HaveOccurred())

			b, e := rsp.Body()
			Expect(e).ToNot(HaveOccurred())

			d, e := io.ReadAll(b)
			Expect(e).ToNot(HaveOccurred())
			Expect(string(d)).To(Equal(want))
		}
	})

	It("should reject sends past the pipelining limit", func() {
		srv := newRawServer(func(c net.Conn) {
			// withhold every response
			br := bufio.NewReader(c)
			readRequest(br)

			time.Sleep(time.Second)
		})
		defer srv.close()

		cn := libh1.New(srv.dial(), false, libh1.Config{MaxConcurrent: 1}, nil)
		defer cn.Shutdown()

		Expect(cn.Send(context.Background(), newExchange(http.MethodGet, "/hello"))).ToNot(HaveOccurred())

		err := cn.Send(context.Background(), newExchange(http.MethodGet, "/hello"))
		Expect(err).To(HaveOccurred())
		Expect(err.IsCode(libh1.ErrorConnBusy)).To(BeTrue())
	})

	It("should surface chunked bodies and trailers", func() {
		srv := newRawServer(func(c net.Conn) {
			br := bufio.NewReader(c)
			readRequest(br)

			_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"+
				"2\r\nHi\r\n1\r\n!\r\n0\r\nX-Check: yes\r\n\r\n")
		})
		defer srv.close()

		cn := libh1.New(srv.dial(), false, libh1.Config{}, nil)
		defer cn.Shutdown()

		ex := newExchange(http.MethodGet, "/hello")
		Expect(cn.Send(context.Background(), ex)).ToNot(HaveOccurred())

		rsp, err := ex.Await(context.Background())
		Expect(err).ToNot(HaveOccurred())

		b, e := rsp.Body()
		Expect(e).ToNot(HaveOccurred())

		d, e := io.ReadAll(b)
		Expect(e).ToNot(HaveOccurred())
		Expect(string(d)).To(Equal("Hi!"))

		Eventually(func() http.Header {
			return rsp.Trailers()
		}, time.Second).ShouldNot(BeNil())
		Expect(rsp.Trailers().Get("X-Check")).To(Equal("yes"))
	})

	It("should serialize a chunked request body when length is unknown", func() {
		raw := make(chan string, 1)

		srv := newRawServer(func(c net.Conn) {
			br := bufio.NewReader(c)
			lines := readRequest(br)

			var buf []byte

			for {
				chunk := make([]byte, 256)

				n, e := br.Read(chunk)
				if n > 0 {
					buf = append(buf, chunk[:n]...)
				}

				if bytesHasSuffix(buf, "0\r\n\r\n") || e != nil {
					break
				}
			}

			raw <- strings.Join(lines, "\n") + "\n" + string(buf)

			_, _ = io.WriteString(c, "HTTP/1.1 204 No Content\r\n\r\n")
		})
		defer srv.close()

		cn := libh1.New(srv.dial(), false, libh1.Config{}, nil)
		defer cn.Shutdown()

		ex := newExchange(http.MethodPost, "/hello")
		Expect(ex.Request().SetBody(libexc.NewBodyRaw(strings.NewReader("xxxxx"), -1))).ToNot(HaveOccurred())

		Expect(cn.Send(context.Background(), ex)).ToNot(HaveOccurred())

		rsp, err := ex.Await(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(rsp.StatusCode()).To(Equal(204))

		var got string
		Eventually(raw, time.Second).Should(Receive(&got))
		Expect(got).To(ContainSubstring("Transfer-Encoding: chunked"))
		Expect(got).To(ContainSubstring("5\r\nxxxxx\r\n"))
	})

	It("should close after Connection: close", func() {
		srv := newRawServer(func(c net.Conn) {
			br := bufio.NewReader(c)
			readRequest(br)

			_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nConnection: close\r\nContent-Length: 0\r\n\r\n")
		})
		defer srv.close()

		cn := libh1.New(srv.dial(), false, libh1.Config{}, nil)

		ex := newExchange(http.MethodGet, "/hello")
		Expect(cn.Send(context.Background(), ex)).ToNot(HaveOccurred())

		rsp, err := ex.Await(context.Background())
		Expect(err).ToNot(HaveOccurred())

		b, _ := rsp.Body()
		_, _ = io.ReadAll(b)

		Eventually(cn.IsClosed, time.Second).Should(BeTrue())
	})

	It("should swap the pipeline to HTTP/2 when the server accepts the upgrade", func() {
		srv := newRawServer(func(c net.Conn) {
			br := bufio.NewReader(c)

			req, e := http.ReadRequest(br)
			if e != nil || req.Header.Get("Upgrade") != "h2c" {
				_ = c.Close()
				return
			}

			settings, e := base64.RawURLEncoding.DecodeString(req.Header.Get("HTTP2-Settings"))
			if e != nil {
				_ = c.Close()
				return
			}

			req.Body = http.NoBody

			_, _ = io.WriteString(c, "HTTP/1.1 101 Switching Protocols\r\nConnection: Upgrade\r\nUpgrade: h2c\r\n\r\n")

			s := &http2.Server{}
			s.ServeConn(&upgradedConn{Conn: c, r: br}, &http2.ServeConnOpts{
				UpgradeRequest: req,
				Settings:       settings,
				Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					_, _ = io.WriteString(w, r.URL.Path)
				}),
			})
		})
		defer srv.close()

		cn := libh1.New(srv.dial(), false, libh1.Config{UpgradeH2C: true}, nil)
		defer cn.Shutdown()

		cn.SetUpgradeFunc(func(ex *libexc.Exchange) (libptc.Connection, error) {
			cnx, br := cn.Channel()
			return libh2.NewUpgraded(cnx, br, libh2.Config{}, nil, ex)
		})

		// the upgrade exchange rides stream 1
		first := newExchange(http.MethodGet, "/one")
		Expect(cn.Send(context.Background(), first)).ToNot(HaveOccurred())

		rsp, err := first.Await(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(rsp.StatusCode()).To(Equal(200))

		b, e := rsp.Body()
		Expect(e).ToNot(HaveOccurred())

		d, e := io.ReadAll(b)
		Expect(e).ToNot(HaveOccurred())
		Expect(string(d)).To(Equal("/one"))

		// subsequent exchanges go through the installed HTTP/2 pipeline
		second := newExchange(http.MethodGet, "/two")
		Expect(cn.Send(context.Background(), second)).ToNot(HaveOccurred())

		rsp, err = second.Await(context.Background())
		Expect(err).ToNot(HaveOccurred())

		b, e = rsp.Body()
		Expect(e).ToNot(HaveOccurred())

		d, e = io.ReadAll(b)
		Expect(e).ToNot(HaveOccurred())
		Expect(string(d)).To(Equal("/two"))
	})

	It("should populate length and media type from a resource body", func() {
		f, e := os.CreateTemp("", "res-*.txt")
		Expect(e).ToNot(HaveOccurred())
		defer func() {
			_ = os.Remove(f.Name())
		}()

		_, e = f.WriteString("hello world")
		Expect(e).ToNot(HaveOccurred())
		Expect(f.Close()).ToNot(HaveOccurred())

		head := make(chan []string, 1)

		srv := newRawServer(func(c net.Conn) {
			br := bufio.NewReader(c)
			lines := readRequest(br)
			head <- lines

			_, _ = io.CopyN(io.Discard, br, 11)
			_, _ = io.WriteString(c, "HTTP/1.1 204 No Content\r\n\r\n")
		})
		defer srv.close()

		cn := libh1.New(srv.dial(), false, libh1.Config{}, nil)
		defer cn.Shutdown()

		body, err := libexc.NewBodyResource(f.Name())
		Expect(err).ToNot(HaveOccurred())
		Expect(body.Length()).To(Equal(int64(11)))

		ex := newExchange(http.MethodPost, "/upload")
		Expect(ex.Request().SetBody(body)).ToNot(HaveOccurred())
		Expect(cn.Send(context.Background(), ex)).ToNot(HaveOccurred())

		rsp, err := ex.Await(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(rsp.StatusCode()).To(Equal(204))

		var lines []string
		Eventually(head, time.Second).Should(Receive(&lines))
		Expect(hasLinePrefix(lines, "Content-Length: 11")).To(BeTrue())
		Expect(hasLinePrefix(lines, "Content-Type: text/plain")).To(BeTrue())
	})

	It("should advertise h2c only on the first exchange and continue on refusal", func() {
		reqs := make(chan []string, 2)

		srv := newRawServer(func(c net.Conn) {
			br := bufio.NewReader(c)

			for i := 0; i < 2; i++ {
				lines := readRequest(br)
				reqs <- lines

				_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
			}
		})
		defer srv.close()

		cn := libh1.New(srv.dial(), false, libh1.Config{UpgradeH2C: true}, nil)
		defer cn.Shutdown()

		cn.SetUpgradeFunc(func(ex *libexc.Exchange) (libptc.Connection, error) {
			Fail("upgrade func must not run when the server refuses")
			return nil, nil
		})

		for i := 0; i < 2; i++ {
			ex := newExchange(http.MethodGet, "/hello")
			Expect(cn.Send(context.Background(), ex)).ToNot(HaveOccurred())

			rsp, err := ex.Await(context.Background())
			Expect(err).ToNot(HaveOccurred())

			b, _ := rsp.Body()
			_, _ = io.ReadAll(b)
		}

		var first, second []string
		Eventually(reqs, time.Second).Should(Receive(&first))
		Eventually(reqs, time.Second).Should(Receive(&second))

		Expect(hasLinePrefix(first, "Upgrade: h2c")).To(BeTrue())
		Expect(hasLinePrefix(first, "HTTP2-Settings:")).To(BeTrue())
		Expect(hasLinePrefix(second, "Upgrade:")).To(BeFalse())
	})
})
