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
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// OpCode is a WebSocket frame opcode.
type OpCode byte

const (
	OpContinuation OpCode = 0x0
	OpText         OpCode = 0x1
	OpBinary       OpCode = 0x2
	OpClose        OpCode = 0x8
	OpPing         OpCode = 0x9
	OpPong         OpCode = 0xa
)

// IsControl reports whether the opcode is a control frame opcode.
func (o OpCode) IsControl() bool {
	return o >= OpClose
}

func (o OpCode) String() string {
	switch o {
	case OpContinuation:
		return "CONTINUATION"
	case OpText:
		return "TEXT"
	case OpBinary:
		return "BINARY"
	case OpClose:
		return "CLOSE"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	}

	return fmt.Sprintf("OPCODE(%#x)", byte(o))
}

// Frame is one WebSocket frame.
type Frame struct {
	Final      bool
	Compressed bool // RSV1
	Op         OpCode
	Payload    []byte
}

const maxControlPayload = 125

// readFrame decodes one frame from the wire. A masked frame is accepted and
// unmasked with its key.
func readFrame(r *bufio.Reader) (*Frame, error) {
	var h [2]byte

	if _, err := io.ReadFull(r, h[:]); err != nil {
		return nil, err
	}

	f := &Frame{
		Final:      h[0]&0x80 != 0,
		Compressed: h[0]&0x40 != 0,
		Op:         OpCode(h[0] & 0x0f),
	}

	if h[0]&0x30 != 0 {
		return nil, ErrorProtocol.Error(nil)
	}

	masked := h[1]&0x80 != 0
	n := uint64(h[1] & 0x7f)

	switch n {
	case 126:
		var x [2]byte
		if _, err := io.ReadFull(r, x[:]); err != nil {
			return nil, err
		}
		n = uint64(binary.BigEndian.Uint16(x[:]))
	case 127:
		var x [8]byte
		if _, err := io.ReadFull(r, x[:]); err != nil {
			return nil, err
		}
		n = binary.BigEndian.Uint64(x[:])
	}

	if f.Op.IsControl() && (n > maxControlPayload || !f.Final) {
		return nil, ErrorProtocol.Error(nil)
	}

	var key [4]byte

	if masked {
		if _, err := io.ReadFull(r, key[:]); err != nil {
			return nil, err
		}
	}

	if n > 0 {
		f.Payload = make([]byte, n)

		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, err
		}

		if masked {
			maskBytes(key, f.Payload)
		}
	}

	return f, nil
}

// writeFrame encodes one frame on the wire. Client-to-server frames are
// always masked with a fresh key.
func writeFrame(w *bufio.Writer, f *Frame) error {
	b0 := byte(f.Op)

	if f.Final {
		b0 |= 0x80
	}

	if f.Compressed {
		b0 |= 0x40
	}

	n := len(f.Payload)
	h := make([]byte, 0, 14)
	h = append(h, b0)

	switch {
	case n <= 125:
		h = append(h, 0x80|byte(n))
	case n <= 0xffff:
		h = append(h, 0x80|126)
		h = binary.BigEndian.AppendUint16(h, uint16(n))
	default:
		h = append(h, 0x80|127)
		h = binary.BigEndian.AppendUint64(h, uint64(n))
	}

	var key [4]byte

	if _, err := rand.Read(key[:]); err != nil {
		return err
	}

	h = append(h, key[:]...)

	if _, err := w.Write(h); err != nil {
		return err
	}

	if n > 0 {
		p := make([]byte, n)
		copy(p, f.Payload)
		maskBytes(key, p)

		if _, err := w.Write(p); err != nil {
			return err
		}
	}

	return w.Flush()
}

func maskBytes(key [4]byte, p []byte) {
	for i := range p {
		p[i] ^= key[i&3]
	}
}
