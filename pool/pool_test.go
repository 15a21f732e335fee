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

package pool_test

import (
	"context"
	"sync"
	"time"

	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"
	libpol "github.com/nabbar/httpclient/pool"
	libptc "github.com/nabbar/httpclient/protocol"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pool", func() {
	newPool := func(cfg libpol.Config, capacity int) (libpol.Pool, *[]*fakeConn) {
		var (
			m sync.Mutex
			l []*fakeConn
		)

		p, err := libpol.New(cfg, func(ctx context.Context) (libptc.Connection, liberr.Error) {
			c := newFakeConn(capacity)

			m.Lock()
			l = append(l, c)
			m.Unlock()

			return c, nil
		}, nil)

		Expect(err).ToNot(HaveOccurred())

		return p, &l
	}

	It("should grow up to max size and report it", func() {
		p, _ := newPool(libpol.Config{MaxSize: 2, BufferSize: -1, SelectChoiceCount: 2}, 2)
		defer p.Shutdown()

		var hs []libpol.Handle

		for i := 0; i < 4; i++ {
			h, err := p.Acquire(context.Background())
			Expect(err).ToNot(HaveOccurred())
			hs = append(hs, h)
		}

		Expect(p.Size()).To(BeNumerically("<=", 2))
		Expect(p.ActiveRequests()).To(Equal(4))

		for _, h := range hs {
			h.Release()
		}

		Eventually(p.ActiveRequests, time.Second).Should(Equal(0))
	})

	It("should buffer waiters and fail past the buffer size", func() {
		p, l := newPool(libpol.Config{MaxSize: 1, BufferSize: 2}, 1)
		defer p.Shutdown()

		h1, err := p.Acquire(context.Background())
		Expect(err).ToNot(HaveOccurred())

		var (
			m     sync.Mutex
			order []int
		)

		wait := func(i int) {
			defer GinkgoRecover()

			h, e := p.Acquire(context.Background())
			Expect(e).ToNot(HaveOccurred())

			m.Lock()
			order = append(order, i)
			m.Unlock()

			h.Release()
		}

		go wait(2)
		Eventually(p.ActiveRequests, time.Second).Should(Equal(2))

		go wait(3)
		Eventually(p.ActiveRequests, time.Second).Should(Equal(3))

		// the buffer is full: the next acquire is refused
		_, err = p.Acquire(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(err.IsCode(libpol.ErrorPoolFull)).To(BeTrue())

		// releasing serves buffered waiters in arrival order
		h1.Release()

		Eventually(func() []int {
			m.Lock()
			defer m.Unlock()

			o := make([]int, len(order))
			copy(o, order)
			return o
		}, time.Second).Should(Equal([]int{2, 3}))

		_ = l
	})

	It("should fail a buffered waiter with timeout determinism", func() {
		p, _ := newPool(libpol.Config{
			MaxSize:        1,
			BufferSize:     2,
			ConnectTimeout: libdur.ParseDuration(50 * time.Millisecond),
		}, 1)
		defer p.Shutdown()

		h, err := p.Acquire(context.Background())
		Expect(err).ToNot(HaveOccurred())
		defer h.Release()

		t0 := time.Now()

		_, err = p.Acquire(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(err.IsCode(libpol.ErrorConnectionTimeout)).To(BeTrue())
		Expect(time.Since(t0)).To(BeNumerically("<", 250*time.Millisecond))
	})

	It("should serve a buffered waiter when capacity grows", func() {
		p, l := newPool(libpol.Config{MaxSize: 1, BufferSize: 2}, 1)
		defer p.Shutdown()

		h, err := p.Acquire(context.Background())
		Expect(err).ToNot(HaveOccurred())
		defer h.Release()

		got := make(chan libpol.Handle, 1)

		go func() {
			defer GinkgoRecover()

			x, e := p.Acquire(context.Background())
			Expect(e).ToNot(HaveOccurred())
			got <- x
		}()

		Eventually(p.ActiveRequests, time.Second).Should(Equal(2))

		(*l)[0].setCapacity(2)

		Eventually(got, time.Second).Should(Receive())
	})

	It("should remove a closed connection", func() {
		p, l := newPool(libpol.Config{MaxSize: 2, BufferSize: -1}, 1)
		defer p.Shutdown()

		h, err := p.Acquire(context.Background())
		Expect(err).ToNot(HaveOccurred())

		Expect(p.Size()).To(Equal(1))

		h.Release()
		(*l)[0].Shutdown()

		Eventually(p.Size, time.Second).Should(Equal(0))
	})

	It("should refuse acquisition after shutdown", func() {
		p, _ := newPool(libpol.Config{MaxSize: 1, BufferSize: -1}, 1)
		p.Shutdown()

		_, err := p.Acquire(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(err.IsCode(libpol.ErrorPoolClosed)).To(BeTrue())
	})

	It("should report the mean load factor", func() {
		p, _ := newPool(libpol.Config{MaxSize: 1, BufferSize: -1}, 2)
		defer p.Shutdown()

		h, err := p.Acquire(context.Background())
		Expect(err).ToNot(HaveOccurred())
		defer h.Release()

		Expect(p.LoadFactor()).To(BeNumerically("~", 0.5, 0.01))
	})
})
