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
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	libprx "golang.org/x/net/proxy"
)

func (d *dialer) dialProxy(ctx context.Context) (net.Conn, error) {
	switch d.c.Proxy.Type {
	case ProxyHTTP:
		return d.dialProxyHTTP(ctx)
	case ProxySocks4:
		return d.dialProxySocks4(ctx)
	case ProxySocks5:
		return d.dialProxySocks5(ctx)
	}

	return nil, fmt.Errorf("unknown proxy type '%s'", d.c.Proxy.Type)
}

func (d *dialer) dialProxyRaw(ctx context.Context) (net.Conn, error) {
	n := net.Dialer{}
	return n.DialContext(ctx, "tcp", d.c.Proxy.Address)
}

func (d *dialer) dialProxyHTTP(ctx context.Context) (net.Conn, error) {
	con, err := d.dialProxyRaw(ctx)
	if err != nil {
		return nil, err
	}

	req := "CONNECT " + d.c.RemoteAddress + " HTTP/1.1\r\nHost: " + d.c.RemoteAddress + "\r\n"

	if len(d.c.Proxy.Username) > 0 {
		cred := base64.StdEncoding.EncodeToString([]byte(d.c.Proxy.Username + ":" + d.c.Proxy.Password))
		req += "Proxy-Authorization: Basic " + cred + "\r\n"
	}

	req += "\r\n"

	if _, err = io.WriteString(con, req); err != nil {
		_ = con.Close()
		return nil, err
	}

	br := bufio.NewReader(con)

	rsp, err := http.ReadResponse(br, &http.Request{Method: http.MethodConnect})
	if err != nil {
		_ = con.Close()
		return nil, err
	}

	_ = rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		_ = con.Close()
		return nil, fmt.Errorf("proxy refused tunnel: %s", rsp.Status)
	}

	if br.Buffered() > 0 {
		// tunnel payload must not be lost behind the reader buffer
		b := make([]byte, br.Buffered())
		_, _ = io.ReadFull(br, b)
		return &bufferedConn{Conn: con, b: b}, nil
	}

	return con, nil
}

func (d *dialer) dialProxySocks4(ctx context.Context) (net.Conn, error) {
	h, p, err := net.SplitHostPort(d.c.RemoteAddress)
	if err != nil {
		return nil, err
	}

	prt, err := strconv.ParseUint(p, 10, 16)
	if err != nil {
		return nil, err
	}

	ip := net.ParseIP(h)
	if ip != nil {
		ip = ip.To4()
	}

	if ip == nil {
		a, e := net.DefaultResolver.LookupIP(ctx, "ip4", h)
		if e != nil || len(a) == 0 {
			return nil, fmt.Errorf("socks4 proxy: cannot resolve '%s' to ipv4", h)
		}
		ip = a[0].To4()
	}

	con, err := d.dialProxyRaw(ctx)
	if err != nil {
		return nil, err
	}

	// VN=4, CD=1 (CONNECT), DSTPORT, DSTIP, USERID, NUL
	buf := make([]byte, 0, 16+len(d.c.Proxy.Username))
	buf = append(buf, 0x04, 0x01)
	buf = binary.BigEndian.AppendUint16(buf, uint16(prt))
	buf = append(buf, ip...)
	buf = append(buf, d.c.Proxy.Username...)
	buf = append(buf, 0x00)

	if _, err = con.Write(buf); err != nil {
		_ = con.Close()
		return nil, err
	}

	rep := make([]byte, 8)
	if _, err = io.ReadFull(con, rep); err != nil {
		_ = con.Close()
		return nil, err
	}

	if rep[1] != 0x5a {
		_ = con.Close()
		return nil, fmt.Errorf("socks4 proxy refused tunnel: code %#x", rep[1])
	}

	return con, nil
}

func (d *dialer) dialProxySocks5(ctx context.Context) (net.Conn, error) {
	var auth *libprx.Auth

	if len(d.c.Proxy.Username) > 0 {
		auth = &libprx.Auth{
			User:     d.c.Proxy.Username,
			Password: d.c.Proxy.Password,
		}
	}

	p, err := libprx.SOCKS5("tcp", d.c.Proxy.Address, auth, libprx.Direct)
	if err != nil {
		return nil, err
	}

	if c, k := p.(libprx.ContextDialer); k {
		return c.DialContext(ctx, "tcp", d.c.RemoteAddress)
	}

	return p.Dial("tcp", d.c.RemoteAddress)
}

type bufferedConn struct {
	net.Conn
	b []byte
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	if len(c.b) > 0 {
		n := copy(p, c.b)
		c.b = c.b[n:]
		return n, nil
	}

	return c.Conn.Read(p)
}
