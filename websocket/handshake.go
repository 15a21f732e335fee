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

package websocket

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"net"
	"net/http"
	"strings"

	libuid "github.com/hashicorp/go-uuid"
	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
)

const keyGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Handshake performs the RFC 6455 client handshake on the given channel and
// returns the live connection. The request target must be absolute.
func Handshake(cnx net.Conn, tls bool, authority, target string, hdr http.Header, cfg Config, log liblog.FuncLog) (*Conn, liberr.Error) {
	if cnx == nil || len(authority) == 0 || !strings.HasPrefix(target, "/") {
		return nil, ErrorParamsEmpty.Error(nil)
	}

	raw, err := libuid.GenerateRandomBytes(16)
	if err != nil {
		return nil, ErrorHandshake.Error(err)
	}

	key := base64.StdEncoding.EncodeToString(raw)

	var b strings.Builder

	b.WriteString("GET " + target + " HTTP/1.1\r\n")
	b.WriteString("Host: " + authority + "\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Key: " + key + "\r\n")
	b.WriteString("Sec-WebSocket-Version: 13\r\n")

	if len(cfg.Subprotocols) > 0 {
		b.WriteString("Sec-WebSocket-Protocol: " + strings.Join(cfg.Subprotocols, ", ") + "\r\n")
	}

	if e := offerExtensions(cfg); len(e) > 0 {
		b.WriteString("Sec-WebSocket-Extensions: " + e + "\r\n")
	}

	for k, vs := range hdr {
		for _, v := range vs {
			b.WriteString(k + ": " + v + "\r\n")
		}
	}

	b.WriteString("\r\n")

	if _, err = cnx.Write([]byte(b.String())); err != nil {
		return nil, ErrorHandshake.Error(err)
	}

	br := bufio.NewReader(cnx)

	rsp, err := http.ReadResponse(br, &http.Request{Method: http.MethodGet})
	if err != nil {
		return nil, ErrorHandshake.Error(err)
	}

	_ = rsp.Body.Close()

	if rsp.StatusCode != http.StatusSwitchingProtocols {
		return nil, ErrorHandshake.Error(nil)
	}

	if !strings.EqualFold(rsp.Header.Get("Upgrade"), "websocket") {
		return nil, ErrorHandshake.Error(nil)
	}

	ack := sha1.Sum([]byte(key + keyGUID))

	if rsp.Header.Get("Sec-WebSocket-Accept") != base64.StdEncoding.EncodeToString(ack[:]) {
		return nil, ErrorHandshake.Error(nil)
	}

	sub := rsp.Header.Get("Sec-WebSocket-Protocol")

	if len(sub) > 0 && !containsToken(cfg.Subprotocols, sub) {
		return nil, ErrorHandshake.Error(nil)
	}

	ext, e := acceptExtensions(cfg, rsp.Header.Get("Sec-WebSocket-Extensions"))
	if e != nil {
		return nil, e
	}

	return newConn(cnx, br, tls, sub, ext, cfg, log), nil
}

func containsToken(l []string, t string) bool {
	for _, v := range l {
		if v == t {
			return true
		}
	}

	return false
}
