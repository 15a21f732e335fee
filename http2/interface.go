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

// Package http2 implements the HTTP/2 connection: stream management with
// monotonic odd client ids, HPACK header coding, SETTINGS handling with a
// capacity callback toward the pool, flow control on both directions, and
// RST_STREAM based cancellation.
package http2

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"sync"

	liblog "github.com/nabbar/golib/logger"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	libexc "github.com/nabbar/httpclient/exchange"
	libptc "github.com/nabbar/httpclient/protocol"
)

const preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// New opens an HTTP/2 pipeline on the given channel: it sends the client
// preface and SETTINGS, then starts the connection loops. Used for prior
// knowledge and ALPN negotiated h2.
func New(cnx net.Conn, tls bool, cfg Config, log liblog.FuncLog) (*Conn, error) {
	o := newConn(cnx, nil, tls, cfg, log)

	if err := o.handshake(); err != nil {
		_ = cnx.Close()
		return nil, err
	}

	go o.readLoop()

	return o, nil
}

// NewUpgraded installs an HTTP/2 pipeline on a channel that went through an
// h2c upgrade: the preface and SETTINGS are sent, and the given exchange is
// reassigned to stream 1, half-closed on the local side.
func NewUpgraded(cnx net.Conn, rd *bufio.Reader, cfg Config, log liblog.FuncLog, ex *libexc.Exchange) (*Conn, error) {
	o := newConn(cnx, rd, false, cfg, log)

	if err := o.handshake(); err != nil {
		_ = cnx.Close()
		return nil, err
	}

	o.adoptUpgraded(ex)

	go o.readLoop()

	return o, nil
}

func newConn(cnx net.Conn, rd *bufio.Reader, tls bool, cfg Config, log liblog.FuncLog) *Conn {
	var src io.Reader = cnx
	if rd != nil {
		src = rd
	}

	bw := bufio.NewWriter(cnx)
	fr := http2.NewFramer(bw, src)
	fr.MaxHeaderListSize = cfg.MaxHeaderListSize
	fr.ReadMetaHeaders = hpack.NewDecoder(cfg.headerTableSize(), nil)

	o := &Conn{
		c:   cnx,
		t:   tls,
		g:   cfg,
		bw:  bw,
		fr:  fr,
		l:   libptc.NewLoop(0),
		log: log,
		st:  make(map[uint32]*stream),
		id:  1,
		mx:  cfg.maxConcurrent(),
		wo:  65535,
		wp:  65535,
	}

	o.he = hpack.NewEncoder(&o.hb)
	o.cv = sync.NewCond(&o.m)

	return o
}

// Conn is one HTTP/2 connection.
type Conn struct {
	m   sync.Mutex
	c   net.Conn
	t   bool
	g   Config
	bw  *bufio.Writer
	fr  *http2.Framer
	l   *libptc.Loop
	log liblog.FuncLog

	hm sync.Mutex
	hb bytes.Buffer
	he *hpack.Encoder

	st map[uint32]*stream
	id uint32 // next client stream id, odd

	mx int   // effective max concurrent streams
	sx bool  // server advertised its limit at least once
	wo int64 // connection-level send window
	wp int64 // peer initial stream window

	cg bool // going away, refuse new streams
	cd bool // closed

	oc []libptc.FuncOnClose
	op []libptc.FuncOnCapacity
	cv *sync.Cond
	wg sync.WaitGroup
}

var _ libptc.Connection = (*Conn)(nil)
var _ libexc.Carrier = (*Conn)(nil)
