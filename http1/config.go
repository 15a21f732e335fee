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

package http1

import (
	libexc "github.com/nabbar/httpclient/exchange"
	libptc "github.com/nabbar/httpclient/protocol"
)

// DefaultMaxConcurrent is the pipelining depth applied when the config does
// not set one.
const DefaultMaxConcurrent = 10

// FuncUpgrade swaps the pipeline to HTTP/2 after a 101 Switching Protocols:
// it receives the exchange that carried the upgrade, which must be reassigned
// to HTTP/2 stream 1; the raw channel, with any bytes already buffered past
// the 101 head, is reached through Conn.Channel.
type FuncUpgrade func(ex *libexc.Exchange) (libptc.Connection, error)

// Config tunes one HTTP/1.x connection.
type Config struct {
	// Version is VersionHTTP10 or VersionHTTP11.
	Version libptc.Version
	// MaxConcurrent bounds the pipelining FIFO. Zero applies
	// DefaultMaxConcurrent, a negative value means unbounded.
	MaxConcurrent int
	// Decompression installs a response body decoder keyed by
	// Content-Encoding (gzip, deflate, br, zstd, identity).
	Decompression bool
	// UpgradeH2C makes the first exchange advertise an h2c upgrade.
	UpgradeH2C bool
	// BodyBuffer is the chunk buffer depth of response body streams.
	BodyBuffer int
}

func (c Config) maxConcurrent() int {
	if c.MaxConcurrent == 0 {
		return DefaultMaxConcurrent
	}

	if c.MaxConcurrent < 0 {
		return int(^uint(0) >> 1)
	}

	return c.MaxConcurrent
}
