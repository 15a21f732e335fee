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

package websocket_test

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"strings"
	"time"

	libdur "github.com/nabbar/golib/duration"
	libwsk "github.com/nabbar/httpclient/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WebSocket Connection", func() {
	handshake := func(srv *wsServer, cfg libwsk.Config) *libwsk.Conn {
		c, err := libwsk.Handshake(srv.dial(), false, srv.addr(), "/chat", nil, cfg, nil)
		Expect(err).ToNot(HaveOccurred())

		return c
	}

	It("should echo text messages in order and close cleanly", func() {
		srv := newWsServer("chat", func(c net.Conn, br *bufio.Reader) {
			for {
				fin, op, p := readClientFrame(br)

				if op == 0x8 {
					Expect(binary.BigEndian.Uint16(p[:2])).To(Equal(uint16(1000)))
					Expect(string(p[2:])).To(Equal("bye"))
					writeServerFrame(c, true, 0x8, p)
					_ = c.Close()
					return
				}

				writeServerFrame(c, fin, op, p)
			}
		})
		defer srv.close()

		w := handshake(srv, libwsk.Config{Subprotocols: []string{"chat"}})
		Expect(w.Subprotocol()).To(Equal("chat"))

		Expect(w.WriteFrame(context.Background(), &libwsk.Frame{Final: true, Op: libwsk.OpText, Payload: []byte("a")})).ToNot(HaveOccurred())
		Expect(w.WriteFrame(context.Background(), &libwsk.Frame{Final: true, Op: libwsk.OpText, Payload: []byte("b")})).ToNot(HaveOccurred())

		m, err := w.ReadMessage(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(string(m.Data)).To(Equal("a"))

		m, err = w.ReadMessage(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(string(m.Data)).To(Equal("b"))

		Expect(w.Close(libwsk.StatusNormalClosure, "bye")).ToNot(HaveOccurred())
		Eventually(w.IsClosed, time.Second).Should(BeTrue())
	})

	It("should clamp the close reason to a control frame payload", func() {
		payload := make(chan []byte, 1)

		srv := newWsServer("", func(c net.Conn, br *bufio.Reader) {
			_, op, p := readClientFrame(br)
			Expect(op).To(Equal(byte(0x8)))
			payload <- p

			writeServerFrame(c, true, 0x8, p[:2])
			_ = c.Close()
		})
		defer srv.close()

		w := handshake(srv, libwsk.Config{})

		Expect(w.Close(libwsk.StatusNormalClosure, strings.Repeat("r", 200))).ToNot(HaveOccurred())

		var p []byte
		Eventually(payload, time.Second).Should(Receive(&p))
		Expect(len(p)).To(BeNumerically("<=", 125))
		Expect(strings.HasSuffix(string(p[2:]), "...")).To(BeTrue())
		Expect(len(p[2:])).To(Equal(123))
	})

	It("should close with 1002 on an unsolicited continuation frame", func() {
		code := make(chan uint16, 1)

		srv := newWsServer("", func(c net.Conn, br *bufio.Reader) {
			writeServerFrame(c, true, 0x0, []byte("oops"))

			_, op, p := readClientFrame(br)
			Expect(op).To(Equal(byte(0x8)))
			code <- binary.BigEndian.Uint16(p[:2])

			_ = c.Close()
		})
		defer srv.close()

		w := handshake(srv, libwsk.Config{})

		Eventually(code, time.Second).Should(Receive(Equal(uint16(1002))))
		Eventually(w.IsClosed, time.Second).Should(BeTrue())
	})

	It("should aggregate fragments into one message", func() {
		srv := newWsServer("", func(c net.Conn, br *bufio.Reader) {
			writeServerFrame(c, false, 0x1, []byte("He"))
			writeServerFrame(c, false, 0x0, []byte("l"))
			writeServerFrame(c, true, 0x0, []byte("lo"))
		})
		defer srv.close()

		w := handshake(srv, libwsk.Config{})
		defer w.Shutdown()

		m, err := w.ReadMessage(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(m.Op).To(Equal(libwsk.OpText))
		Expect(string(m.Data)).To(Equal("Hello"))
	})

	It("should answer ping with pong", func() {
		pong := make(chan []byte, 1)

		srv := newWsServer("", func(c net.Conn, br *bufio.Reader) {
			writeServerFrame(c, true, 0x9, []byte("x"))

			_, op, p := readClientFrame(br)
			Expect(op).To(Equal(byte(0xa)))
			pong <- p
		})
		defer srv.close()

		w := handshake(srv, libwsk.Config{})
		defer w.Shutdown()

		Eventually(pong, time.Second).Should(Receive(Equal([]byte("x"))))
	})

	It("should refuse close frames on the frame sink", func() {
		srv := newWsServer("", func(c net.Conn, br *bufio.Reader) {
			time.Sleep(100 * time.Millisecond)
		})
		defer srv.close()

		w := handshake(srv, libwsk.Config{})
		defer w.Shutdown()

		err := w.WriteFrame(context.Background(), &libwsk.Frame{Final: true, Op: libwsk.OpClose})
		Expect(err).To(HaveOccurred())
		Expect(err.IsCode(libwsk.ErrorCloseReserved)).To(BeTrue())
	})

	It("should force the close after the inbound close timeout", func() {
		srv := newWsServer("", func(c net.Conn, br *bufio.Reader) {
			// swallow the close frame and never answer
			readClientFrame(br)
			time.Sleep(time.Second)
		})
		defer srv.close()

		w := handshake(srv, libwsk.Config{
			InboundCloseTimeout: libdur.ParseDuration(50 * time.Millisecond),
		})

		Expect(w.Close(libwsk.StatusNormalClosure, "bye")).ToNot(HaveOccurred())
		Eventually(w.IsClosed, time.Second).Should(BeTrue())
	})
})
