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

package transport

import (
	"context"
	"crypto/tls"
	"net"

	liberr "github.com/nabbar/golib/errors"
)

type dialer struct {
	c Config
	t *tls.Config
}

func (d *dialer) Remote() string {
	return d.c.RemoteAddress
}

func (d *dialer) Dial(ctx context.Context, alpn []string) (*Channel, liberr.Error) {
	var (
		con net.Conn
		err error
	)

	if t := d.c.ConnectTimeout.Time(); t > 0 {
		var cnl context.CancelFunc
		ctx, cnl = context.WithTimeout(ctx, t)
		defer cnl()
	}

	if d.c.Proxy.Type == ProxyNone {
		con, err = d.dialDirect(ctx)
	} else {
		con, err = d.dialProxy(ctx)
	}

	if err != nil {
		return nil, ErrorEndpointConnect.Error(err)
	}

	if !d.c.TLS.Enable {
		return &Channel{Conn: con}, nil
	}

	return d.handshake(ctx, con, alpn)
}

func (d *dialer) dialDirect(ctx context.Context) (net.Conn, error) {
	var l net.Addr

	if len(d.c.LocalAddress) > 0 {
		if a, e := net.ResolveTCPAddr("tcp", d.c.LocalAddress); e != nil {
			return nil, e
		} else {
			l = a
		}
	}

	n := net.Dialer{LocalAddr: l}
	return n.DialContext(ctx, "tcp", d.c.RemoteAddress)
}

func (d *dialer) tlsConfig(alpn []string) *tls.Config {
	var c *tls.Config

	if t, _ := d.c.TLS.Config.New(); t != nil {
		c = t.TlsConfig(d.serverName())
	}

	if c == nil && d.t != nil {
		c = d.t.Clone()
	}

	if c == nil {
		c = &tls.Config{}
	}

	if len(c.ServerName) == 0 {
		c.ServerName = d.serverName()
	}

	c.NextProtos = alpn
	return c
}

func (d *dialer) serverName() string {
	if len(d.c.ServerName) > 0 {
		return d.c.ServerName
	}

	if h, _, e := net.SplitHostPort(d.c.RemoteAddress); e == nil {
		return h
	}

	return d.c.RemoteAddress
}

func (d *dialer) handshake(ctx context.Context, con net.Conn, alpn []string) (*Channel, liberr.Error) {
	t := tls.Client(con, d.tlsConfig(alpn))

	if e := t.HandshakeContext(ctx); e != nil {
		_ = con.Close()
		return nil, ErrorEndpointConnect.Error(e)
	}

	p := t.ConnectionState().NegotiatedProtocol

	if len(alpn) > 0 && len(p) > 0 {
		var k bool

		for _, a := range alpn {
			if a == p {
				k = true
				break
			}
		}

		if !k {
			_ = t.Close()
			return nil, ErrorALPNMismatch.Error(nil)
		}
	}

	return &Channel{
		Conn: t,
		ALPN: p,
		TLS:  true,
	}, nil
}
