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

// Package exchange models one logical request/response pair independently of
// the protocol carrying it: the outbound request with its body variants, the
// inbound response with its unicast body stream and trailers, and the state
// machine tying both to a connection with timeout, cancellation and reset.
package exchange

import (
	"context"
	"time"
)

// ResetCode qualifies an exchange reset. HTTP/2 carriers map it to a
// RST_STREAM error code, HTTP/1.x carriers close the connection, WebSocket
// carriers send a CLOSE frame.
type ResetCode uint32

const (
	ResetNoError          ResetCode = 0x0
	ResetProtocolError    ResetCode = 0x1
	ResetInternalError    ResetCode = 0x2
	ResetCancel           ResetCode = 0x8
	ResetEnhanceYourCalm  ResetCode = 0xb
	ResetInadequateSecure ResetCode = 0xc
)

// Carrier is the protocol-side contract an exchange calls back into when it
// is reset or disposed. Connections implement it.
type Carrier interface {
	// ResetExchange performs the protocol-specific reset of the exchange.
	// It must be idempotent.
	ResetExchange(ex *Exchange, code ResetCode)
}

// New allocates an exchange bound to the caller context with the given
// request and request timeout. A zero timeout disables the watchdog.
func New(ctx context.Context, req *Request, timeout time.Duration) *Exchange {
	if ctx == nil {
		ctx = context.Background()
	}

	return &Exchange{
		x: ctx,
		q: req,
		d: timeout,
		s: make(chan *Response, 1),
	}
}
