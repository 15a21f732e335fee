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

// Package transport opens TCP channels to a single remote endpoint,
// optionally tunneled through an HTTP CONNECT, SOCKS4 or SOCKS5 proxy, and
// negotiates TLS with ALPN to select the application protocol installed on
// the channel.
package transport

import (
	"context"
	"crypto/tls"
	"net"

	liberr "github.com/nabbar/golib/errors"
)

// Channel is one freshly opened channel with its negotiated protocol token.
type Channel struct {
	Conn net.Conn
	// ALPN is the negotiated token ("h2", "http/1.1") or empty on cleartext.
	ALPN string
	// TLS reports whether the channel is a TLS session.
	TLS bool
}

// Dialer opens channels to the remote endpoint described by its config.
type Dialer interface {
	// Dial opens one channel. With TLS enabled, the handshake and ALPN
	// negotiation completed when it returns.
	Dial(ctx context.Context, alpn []string) (*Channel, liberr.Error)

	// Remote returns the remote address the dialer targets.
	Remote() string
}

// New builds a dialer from the given config. The tlsDefault material is used
// when the config enables TLS without its own material.
func New(cfg Config, tlsDefault *tls.Config) (Dialer, liberr.Error) {
	if len(cfg.RemoteAddress) == 0 {
		return nil, ErrorParamsEmpty.Error(nil)
	}

	return &dialer{
		c: cfg,
		t: tlsDefault,
	}, nil
}
