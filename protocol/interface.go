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

// Package protocol defines the contract shared by every connection kind of the
// client (HTTP/1.0, HTTP/1.1, HTTP/2, WebSocket) and the event loop primitive
// that serializes all state mutation of a single connection.
package protocol

import (
	"context"
	"net"

	liberr "github.com/nabbar/golib/errors"

	libexc "github.com/nabbar/httpclient/exchange"
)

// FuncOnClose is called once when a connection leaves the wire for good.
type FuncOnClose func()

// FuncOnCapacity is called when the remote peer changes the number of
// concurrent exchanges the connection accepts (HTTP/2 SETTINGS update).
type FuncOnCapacity func(capacity int)

// Connection is one live transport channel able to carry exchanges.
//
// All mutators are safe for concurrent use: implementations funnel them onto
// the connection event loop.
type Connection interface {
	// Version returns the negotiated protocol version of this connection.
	Version() Version

	// IsTLS returns true when the underlying channel is a TLS session.
	IsTLS() bool

	// LocalAddr returns the local address of the underlying channel.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote address of the underlying channel.
	RemoteAddr() net.Addr

	// MaxConcurrent returns the number of exchanges the connection accepts
	// concurrently. For HTTP/1.x this is the pipelining limit, for HTTP/2 the
	// smaller of the local cap and the server MAX_CONCURRENT_STREAMS (the
	// local cap until the server advertises one), for WebSocket always 1.
	MaxConcurrent() int

	// Send hands an exchange over to the connection. The exchange is started
	// on the connection event loop; the call returns without waiting for the
	// response. A connection that is closing or out of capacity returns an
	// error and leaves the exchange untouched.
	Send(ctx context.Context, ex *libexc.Exchange) liberr.Error

	// RegisterOnClose installs the close callback. The callback runs exactly
	// once, whatever the cause of the closure.
	RegisterOnClose(fct FuncOnClose)

	// RegisterOnCapacity installs the capacity change callback.
	RegisterOnCapacity(fct FuncOnCapacity)

	// Shutdown closes the connection immediately, failing in-flight exchanges.
	Shutdown()

	// ShutdownGracefully stops accepting exchanges and completes when every
	// in-flight exchange terminated or the context expired.
	ShutdownGracefully(ctx context.Context) liberr.Error

	// IsClosed reports whether the connection left the wire.
	IsClosed() bool
}
