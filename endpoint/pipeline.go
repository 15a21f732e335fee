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

package endpoint

import (
	"context"

	liberr "github.com/nabbar/golib/errors"

	libexc "github.com/nabbar/httpclient/exchange"
	libh1 "github.com/nabbar/httpclient/http1"
	libh2 "github.com/nabbar/httpclient/http2"
	libptc "github.com/nabbar/httpclient/protocol"
	libtpt "github.com/nabbar/httpclient/transport"
)

// dial opens one channel and installs the codec chain selected by ALPN or by
// the configured protocol set.
func (o *endpoint) dial(ctx context.Context) (libptc.Connection, liberr.Error) {
	var alpn []string

	if o.g.Transport.TLS.Enable {
		if o.g.wantH2() {
			alpn = append(alpn, libptc.VersionHTTP2.ALPN())
		}

		if o.g.wantH1() {
			alpn = append(alpn, libptc.VersionHTTP11.ALPN())
		}
	}

	ch, err := o.d.Dial(ctx, alpn)
	if err != nil {
		return nil, err
	}

	return o.configure(ch)
}

// configure installs the protocol pipeline on a fresh channel.
func (o *endpoint) configure(ch *libtpt.Channel) (libptc.Connection, liberr.Error) {
	h2 := o.g.Http2
	h2.BodyBuffer = o.g.BodyBuffer

	if ch.TLS {
		if libptc.ParseALPN(ch.ALPN) == libptc.VersionHTTP2 {
			c, e := libh2.New(ch.Conn, true, h2, o.log)
			if e != nil {
				return nil, libtpt.ErrorEndpointConnect.Error(e)
			}

			return c, nil
		}

		return o.configureH1(ch, false), nil
	}

	if o.g.wantH2() && !o.g.wantH1() {
		// prior knowledge: the preface goes out immediately
		c, e := libh2.New(ch.Conn, false, h2, o.log)
		if e != nil {
			return nil, libtpt.ErrorEndpointConnect.Error(e)
		}

		return c, nil
	}

	return o.configureH1(ch, o.g.wantH2()), nil
}

func (o *endpoint) configureH1(ch *libtpt.Channel, upgrade bool) *libh1.Conn {
	v := libptc.VersionHTTP11
	if o.g.wantH10() && !o.g.wantH2() {
		v = libptc.VersionHTTP10
	}

	cfg := libh1.Config{
		Version:       v,
		MaxConcurrent: o.g.Http1MaxConcurrent,
		Decompression: o.g.Decompression,
		UpgradeH2C:    upgrade,
		BodyBuffer:    o.g.BodyBuffer,
	}

	c := libh1.New(ch.Conn, ch.TLS, cfg, o.log)

	if upgrade {
		c.SetUpgradeFunc(func(ex *libexc.Exchange) (libptc.Connection, error) {
			cnx, br := c.Channel()

			h2 := o.g.Http2
			h2.BodyBuffer = o.g.BodyBuffer

			return libh2.NewUpgraded(cnx, br, h2, o.log, ex)
		})
	}

	return c
}
