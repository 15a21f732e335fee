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

package exchange_test

import (
	"net/http"
	"net/url"

	libexc "github.com/nabbar/httpclient/exchange"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Request", func() {
	Describe("NewRequest", func() {
		It("should refuse a relative target", func() {
			_, err := libexc.NewRequest(http.MethodGet, "hello")
			Expect(err).To(HaveOccurred())
		})

		It("should refuse empty parameters", func() {
			_, err := libexc.NewRequest("", "/hello")
			Expect(err).To(HaveOccurred())
		})

		It("should normalize the path and keep the query", func() {
			r, err := libexc.NewRequest(http.MethodGet, "/a/../hello?x=1")
			Expect(err).ToNot(HaveOccurred())
			Expect(r.Path()).To(Equal("/hello"))
			Expect(r.Target()).To(Equal("/hello?x=1"))
		})
	})

	Describe("Mutators", func() {
		It("should fail every mutator once sent", func() {
			r, err := libexc.NewRequest(http.MethodPost, "/hello")
			Expect(err).ToNot(HaveOccurred())

			ex := libexc.New(nil, r, 0)
			ex.Start()

			Expect(r.SetMethod(http.MethodPut)).To(HaveOccurred())
			Expect(r.SetAuthority("h:8080")).To(HaveOccurred())
			Expect(r.HeaderSet("X-Test", "v")).To(HaveOccurred())
			Expect(r.HeaderAdd("X-Test", "v")).To(HaveOccurred())
			Expect(r.AddQuery("k", "v")).To(HaveOccurred())
			Expect(r.SetBody(libexc.NewBodyString("x"))).To(HaveOccurred())
		})

		It("should refuse a body on GET", func() {
			r, err := libexc.NewRequest(http.MethodGet, "/hello")
			Expect(err).ToNot(HaveOccurred())
			Expect(r.SetBody(libexc.NewBodyString("x"))).To(HaveOccurred())
		})

		It("should supersede a previously set body before send", func() {
			r, err := libexc.NewRequest(http.MethodPost, "/hello")
			Expect(err).ToNot(HaveOccurred())

			Expect(r.SetBody(libexc.NewBodyString("first"))).ToNot(HaveOccurred())
			Expect(r.SetBody(libexc.NewBodyURLEncoded(url.Values{"a": []string{"b"}}))).ToNot(HaveOccurred())

			Expect(r.Body().ContentType()).To(ContainSubstring("urlencoded"))
		})
	})

	Describe("Bodies", func() {
		It("should set the url encoded content type", func() {
			b := libexc.NewBodyURLEncoded(url.Values{"a": []string{"b c"}})
			Expect(b.ContentType()).To(Equal("application/x-www-form-urlencoded; charset=UTF-8"))
			Expect(b.Length()).To(BeNumerically(">", 0))
		})

		It("should generate a multipart boundary", func() {
			b, err := libexc.NewBodyMultipart([]libexc.Part{})
			Expect(err).ToNot(HaveOccurred())
			Expect(b.ContentType()).To(ContainSubstring("multipart/form-data; boundary="))
		})

		It("should subscribe a body at most once", func() {
			b := libexc.NewBodyString("hello")

			_, err := b.Open()
			Expect(err).ToNot(HaveOccurred())

			_, err = b.Open()
			Expect(err).To(HaveOccurred())
		})
	})
})
