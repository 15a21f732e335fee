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

// Package http1 implements the HTTP/1.0 and HTTP/1.1 connection: one request
// at a time or a bounded pipeline, responses matched to requests strictly in
// FIFO order, chunked transfer, content decompression, keep-alive and close
// semantics, and the h2c upgrade transition to HTTP/2.
package http1

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"

	liblog "github.com/nabbar/golib/logger"

	libexc "github.com/nabbar/httpclient/exchange"
	libptc "github.com/nabbar/httpclient/protocol"
)

// New installs an HTTP/1.x pipeline on the given channel and starts the
// connection loops.
func New(cnx net.Conn, tls bool, cfg Config, log liblog.FuncLog) *Conn {
	v := cfg.Version
	if v != libptc.VersionHTTP10 {
		v = libptc.VersionHTTP11
	}

	d := cfg.maxConcurrent()
	if d > 1024 {
		d = 1024
	}

	c := &Conn{
		c:   cnx,
		t:   tls,
		v:   v,
		g:   cfg,
		x:   cfg.maxConcurrent(),
		br:  bufio.NewReader(cnx),
		bw:  bufio.NewWriter(cnx),
		l:   libptc.NewLoop(0),
		log: log,
		rq:  make(chan *inflight, d),
		u:   cfg.UpgradeH2C,
	}

	go c.readLoop()

	return c
}

// Conn is one HTTP/1.x connection.
type Conn struct {
	m   sync.Mutex
	c   net.Conn
	t   bool
	v   libptc.Version
	g   Config
	x   int
	br  *bufio.Reader
	bw  *bufio.Writer
	l   *libptc.Loop
	log liblog.FuncLog

	q  []*inflight    // FIFO, head is awaiting response
	rq chan *inflight // hand-off to the read loop, same order as q

	u  bool // next request advertises h2c upgrade
	up FuncUpgrade
	nx libptc.Connection // post-upgrade pipeline, forwards everything

	cg bool        // closing: drain then close
	cd atomic.Bool // closed
	oc []libptc.FuncOnClose
	op []libptc.FuncOnCapacity
}

type inflight struct {
	e *libexc.Exchange
	u bool // carried the h2c upgrade offer
}

var _ libptc.Connection = (*Conn)(nil)
var _ libexc.Carrier = (*Conn)(nil)
