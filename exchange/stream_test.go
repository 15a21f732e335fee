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
	"context"
	"io"
	"strings"
	"time"

	libexc "github.com/nabbar/httpclient/exchange"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Stream", func() {
	It("should deliver chunks in order and end with EOF", func() {
		s := libexc.NewStream(4)

		go func() {
			_ = s.Write(context.Background(), []byte("Hi"))
			_ = s.Write(context.Background(), []byte("!"))
			s.CloseSend()
		}()

		r, err := s.Reader()
		Expect(err).ToNot(HaveOccurred())

		b, e := io.ReadAll(r)
		Expect(e).ToNot(HaveOccurred())
		Expect(string(b)).To(Equal("Hi!"))
	})

	It("should accept a single subscription", func() {
		s := libexc.NewStream(1)
		s.CloseSend()

		_, err := s.Reader()
		Expect(err).ToNot(HaveOccurred())

		_, err = s.Reader()
		Expect(err).To(HaveOccurred())
	})

	It("should apply transformers in declaration order", func() {
		s := libexc.NewStream(1)

		Expect(s.Transform(func(r io.ReadCloser) io.ReadCloser {
			return readCloser{io.MultiReader(strings.NewReader("a"), r)}
		})).ToNot(HaveOccurred())

		Expect(s.Transform(func(r io.ReadCloser) io.ReadCloser {
			return readCloser{io.MultiReader(strings.NewReader("b"), r)}
		})).ToNot(HaveOccurred())

		go func() {
			_ = s.Write(context.Background(), []byte("c"))
			s.CloseSend()
		}()

		r, err := s.Reader()
		Expect(err).ToNot(HaveOccurred())

		b, e := io.ReadAll(r)
		Expect(e).ToNot(HaveOccurred())
		Expect(string(b)).To(Equal("bac"))
	})

	It("should run the cancel hook when the consumer closes early", func() {
		s := libexc.NewStream(1)

		c := make(chan struct{})
		s.OnCancel(func() {
			close(c)
		})

		go func() {
			for {
				if e := s.Write(context.Background(), []byte("x")); e != nil {
					return
				}
			}
		}()

		r, err := s.Reader()
		Expect(err).ToNot(HaveOccurred())

		_ = r.Close()

		Eventually(c, time.Second).Should(BeClosed())
	})

	It("should block the producer past the buffer depth", func() {
		s := libexc.NewStream(2)

		n := make(chan int, 1)

		go func() {
			i := 0

			for {
				ctx, cnl := context.WithTimeout(context.Background(), 50*time.Millisecond)
				e := s.Write(ctx, []byte("x"))
				cnl()

				if e != nil {
					n <- i
					return
				}

				i++
			}
		}()

		// with no consumer demand, at most the buffer depth is accepted
		Eventually(n, time.Second).Should(Receive(Equal(2)))
	})
})

type readCloser struct {
	io.Reader
}

func (readCloser) Close() error {
	return nil
}
