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
	libdur "github.com/nabbar/golib/duration"
	libsiz "github.com/nabbar/golib/size"
)

// StatusCode is a WebSocket close status code.
type StatusCode uint16

const (
	StatusNormalClosure       StatusCode = 1000
	StatusEndpointUnavailable StatusCode = 1001
	StatusProtocolError       StatusCode = 1002
	StatusUnsupportedData     StatusCode = 1003
	StatusAbnormalClosure     StatusCode = 1006
	StatusInternalError       StatusCode = 1011
)

// Config tunes one WebSocket connection.
type Config struct {
	// Subprotocols advertised during the handshake, by preference order.
	Subprotocols []string `json:"subprotocols,omitempty" yaml:"subprotocols,omitempty" toml:"subprotocols,omitempty" mapstructure:"subprotocols,omitempty"`

	// PerMessageDeflate negotiates the permessage-deflate extension.
	PerMessageDeflate bool `json:"per_message_deflate" yaml:"per_message_deflate" toml:"per_message_deflate" mapstructure:"per_message_deflate"`

	// PerFrameDeflate negotiates the x-webkit-deflate-frame extension.
	PerFrameDeflate bool `json:"per_frame_deflate" yaml:"per_frame_deflate" toml:"per_frame_deflate" mapstructure:"per_frame_deflate"`

	// ClientNoContextTakeover advertises client_no_context_takeover.
	ClientNoContextTakeover bool `json:"client_no_context_takeover" yaml:"client_no_context_takeover" toml:"client_no_context_takeover" mapstructure:"client_no_context_takeover"`

	// ServerNoContextTakeover requests server_no_context_takeover.
	ServerNoContextTakeover bool `json:"server_no_context_takeover" yaml:"server_no_context_takeover" toml:"server_no_context_takeover" mapstructure:"server_no_context_takeover"`

	// MaxFramePayload caps a single outbound frame payload; larger messages
	// are fragmented. Zero applies 32 KiB.
	MaxFramePayload libsiz.Size `json:"max_frame_payload,omitempty" yaml:"max_frame_payload,omitempty" toml:"max_frame_payload,omitempty" mapstructure:"max_frame_payload,omitempty"`

	// InboundBuffer is the inbound frame buffer depth. Zero applies 32.
	InboundBuffer int `json:"inbound_buffer,omitempty" yaml:"inbound_buffer,omitempty" toml:"inbound_buffer,omitempty" mapstructure:"inbound_buffer,omitempty"`

	// InboundCloseTimeout bounds the wait for the peer CLOSE after ours.
	InboundCloseTimeout libdur.Duration `json:"inbound_close_timeout,omitempty" yaml:"inbound_close_timeout,omitempty" toml:"inbound_close_timeout,omitempty" mapstructure:"inbound_close_timeout,omitempty"`
}

const (
	defMaxFramePayload = 32 * libsiz.SizeKilo
	defInboundBuffer   = 32
)

func (c Config) maxFramePayload() int {
	if c.MaxFramePayload <= 0 {
		return int(defMaxFramePayload.Int64())
	}

	return int(c.MaxFramePayload.Int64())
}

func (c Config) inboundBuffer() int {
	if c.InboundBuffer <= 0 {
		return defInboundBuffer
	}

	return c.InboundBuffer
}
