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

package http2

// Config tunes one HTTP/2 connection.
type Config struct {
	// HeaderTableSize is the HPACK dynamic table size advertised to the peer.
	HeaderTableSize uint32 `json:"header_table_size,omitempty" yaml:"header_table_size,omitempty" toml:"header_table_size,omitempty" mapstructure:"header_table_size,omitempty"`

	// InitialWindowSize is the stream-level flow control window advertised.
	InitialWindowSize uint32 `json:"initial_window_size,omitempty" yaml:"initial_window_size,omitempty" toml:"initial_window_size,omitempty" mapstructure:"initial_window_size,omitempty"`

	// MaxFrameSize is the largest frame payload accepted.
	MaxFrameSize uint32 `json:"max_frame_size,omitempty" yaml:"max_frame_size,omitempty" toml:"max_frame_size,omitempty" mapstructure:"max_frame_size,omitempty"`

	// MaxHeaderListSize bounds the decoded header list.
	MaxHeaderListSize uint32 `json:"max_header_list_size,omitempty" yaml:"max_header_list_size,omitempty" toml:"max_header_list_size,omitempty" mapstructure:"max_header_list_size,omitempty"`

	// MaxConcurrent caps streams locally; the effective limit is
	// min(MaxConcurrent, server MAX_CONCURRENT_STREAMS).
	MaxConcurrent int `json:"max_concurrent_streams,omitempty" yaml:"max_concurrent_streams,omitempty" toml:"max_concurrent_streams,omitempty" mapstructure:"max_concurrent_streams,omitempty"`

	// BodyBuffer is the chunk buffer depth of response body streams.
	BodyBuffer int `json:"-" yaml:"-" toml:"-" mapstructure:"-"`
}

const (
	defHeaderTableSize   = 4096
	defInitialWindowSize = 65535
	defMaxFrameSize      = 16384
	defMaxConcurrent     = 100
)

func (c Config) headerTableSize() uint32 {
	if c.HeaderTableSize == 0 {
		return defHeaderTableSize
	}

	return c.HeaderTableSize
}

func (c Config) initialWindowSize() uint32 {
	if c.InitialWindowSize == 0 {
		return defInitialWindowSize
	}

	return c.InitialWindowSize
}

func (c Config) maxFrameSize() uint32 {
	if c.MaxFrameSize < defMaxFrameSize {
		return defMaxFrameSize
	}

	return c.MaxFrameSize
}

func (c Config) maxConcurrent() int {
	if c.MaxConcurrent <= 0 {
		return defMaxConcurrent
	}

	return c.MaxConcurrent
}
