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
	"context"

	liberr "github.com/nabbar/golib/errors"
)

// Message is one WebSocket message: the aggregation of consecutive
// non-final frames of the same kind up to the final frame.
type Message struct {
	Op   OpCode
	Data []byte
}

// ReadMessage aggregates inbound frames into the next complete message.
// The read loop answers PING and handles CLOSE itself; any other control
// frame reaching the inbound channel keeps its arrival order and is skipped
// here, so only data frames are aggregated.
func (o *Conn) ReadMessage(ctx context.Context) (*Message, liberr.Error) {
	var (
		m    *Message
		comp bool
	)

	for {
		f, err := o.ReadFrame(ctx)
		if err != nil {
			return nil, err
		}

		if f.Op.IsControl() {
			continue
		}

		if m == nil {
			m = &Message{Op: f.Op}
			comp = f.Compressed && o.xt.perMessage
		}

		m.Data = append(m.Data, f.Payload...)

		if f.Final {
			if comp {
				if p, e := inflatePayload(m.Data); e == nil {
					m.Data = p
				}
			}

			return m, nil
		}
	}
}

// WriteMessage sends one message, fragmented to the configured maximum
// frame payload, compressed when permessage-deflate has been negotiated.
func (o *Conn) WriteMessage(ctx context.Context, op OpCode, data []byte) liberr.Error {
	if op.IsControl() {
		return ErrorParamsEmpty.Error(nil)
	}

	compressed := false

	if o.xt.perMessage && len(data) > 0 {
		if p, e := deflatePayload(data); e == nil {
			data = p
			compressed = true
		}
	}

	max := o.g.maxFramePayload()
	first := true

	for {
		n := len(data)
		if n > max {
			n = max
		}

		f := &Frame{
			Final:   n == len(data),
			Op:      op,
			Payload: data[:n],
		}

		if first {
			f.Compressed = compressed
			first = false
		} else {
			f.Op = OpContinuation
		}

		if e := o.write(ctx, f); e != nil {
			return e
		}

		data = data[n:]

		if len(data) == 0 && f.Final {
			return nil
		}
	}
}
