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
	"net/http"
	"time"

	libexc "github.com/nabbar/httpclient/exchange"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type carrier struct {
	c chan libexc.ResetCode
}

func (c *carrier) ResetExchange(ex *libexc.Exchange, code libexc.ResetCode) {
	c.c <- code
}

var _ = Describe("Exchange", func() {
	newEx := func(timeout time.Duration) (*libexc.Exchange, *carrier) {
		r, err := libexc.NewRequest(http.MethodGet, "/hello")
		Expect(err).ToNot(HaveOccurred())

		ex := libexc.New(context.Background(), r, timeout)
		k := &carrier{c: make(chan libexc.ResetCode, 1)}
		ex.SetCarrier(k)

		return ex, k
	}

	It("should emit the response exactly once", func() {
		ex, _ := newEx(0)
		ex.Init()

		ex.EmitResponse(libexc.NewResponse(200, nil, nil))
		ex.EmitResponse(libexc.NewResponse(500, nil, nil))

		r, err := ex.Await(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(r.StatusCode()).To(Equal(200))
	})

	It("should fail the sink on disposal without response", func() {
		ex, _ := newEx(0)
		ex.Init()
		ex.Dispose(libexc.ErrorDisposed.Error(nil))

		_, err := ex.Await(context.Background())
		Expect(err).To(HaveOccurred())
	})

	It("should keep the first recorded cause", func() {
		ex, _ := newEx(0)
		ex.Init()

		first := libexc.ErrorTimeout.Error(nil)
		ex.Dispose(first)
		ex.Dispose(libexc.ErrorCancelled.Error(nil))

		Expect(ex.Cause().IsCode(libexc.ErrorTimeout)).To(BeTrue())
	})

	It("should reset with CANCEL no later than the request timeout", func() {
		ex, k := newEx(50 * time.Millisecond)
		ex.Init()

		Eventually(k.c, 200*time.Millisecond).Should(Receive(Equal(libexc.ResetCancel)))
		Expect(ex.IsDisposed()).To(BeTrue())
	})

	It("should reset once only", func() {
		ex, k := newEx(0)
		ex.Init()

		ex.Reset(libexc.ResetCancel)
		ex.Reset(libexc.ResetCancel)

		Expect(k.c).To(HaveLen(1))
	})

	It("should cancel through the await context", func() {
		ex, k := newEx(0)
		ex.Init()

		ctx, cnl := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cnl()

		_, err := ex.Await(ctx)
		Expect(err).To(HaveOccurred())
		Eventually(k.c, time.Second).Should(Receive(Equal(libexc.ResetCancel)))
	})
})
