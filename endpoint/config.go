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
	"fmt"

	libval "github.com/go-playground/validator/v10"
	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"

	libh2 "github.com/nabbar/httpclient/http2"
	libpol "github.com/nabbar/httpclient/pool"
	libtpt "github.com/nabbar/httpclient/transport"
	libwsk "github.com/nabbar/httpclient/websocket"
)

// DefaultUserAgent is applied when the config does not set one.
const DefaultUserAgent = "Inverno/" + Version

const defRequestTimeout = "60s"

// Config aggregates the endpoint, transport, pool and protocol options.
type Config struct {
	// Transport describes how channels to the remote endpoint are opened.
	Transport libtpt.Config `json:"transport" yaml:"transport" toml:"transport" mapstructure:"transport"`

	// Pool tunes the connection pool.
	Pool libpol.Config `json:"pool" yaml:"pool" toml:"pool" mapstructure:"pool"`

	// Protocols lists the configured versions by preference: h2, http/1.1,
	// http/1.0. Empty applies [h2, http/1.1] with TLS and [http/1.1] without.
	Protocols []string `json:"protocols,omitempty" yaml:"protocols,omitempty" toml:"protocols,omitempty" mapstructure:"protocols,omitempty"`

	// RequestTimeout bounds the wait for response headers once the request
	// has been accepted by a connection. Zero applies 60s.
	RequestTimeout libdur.Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty" toml:"request_timeout,omitempty" mapstructure:"request_timeout,omitempty"`

	// UserAgent overrides the default User-Agent header.
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty" toml:"user_agent,omitempty" mapstructure:"user_agent,omitempty"`

	// Decompression installs response body decoders and advertises
	// Accept-Encoding.
	Decompression bool `json:"decompression" yaml:"decompression" toml:"decompression" mapstructure:"decompression"`

	// Http1MaxConcurrent bounds HTTP/1.1 pipelining per connection.
	Http1MaxConcurrent int `json:"http1_max_concurrent_requests,omitempty" yaml:"http1_max_concurrent_requests,omitempty" toml:"http1_max_concurrent_requests,omitempty" mapstructure:"http1_max_concurrent_requests,omitempty"`

	// Http2 tunes HTTP/2 connections.
	Http2 libh2.Config `json:"http2,omitempty" yaml:"http2,omitempty" toml:"http2,omitempty" mapstructure:"http2,omitempty"`

	// WebSocket tunes WebSocket connections.
	WebSocket libwsk.Config `json:"websocket,omitempty" yaml:"websocket,omitempty" toml:"websocket,omitempty" mapstructure:"websocket,omitempty"`

	// BodyBuffer is the chunk buffer depth of response body streams.
	BodyBuffer int `json:"body_buffer,omitempty" yaml:"body_buffer,omitempty" toml:"body_buffer,omitempty" mapstructure:"body_buffer,omitempty"`
}

func (c Config) requestTimeout() libdur.Duration {
	if c.RequestTimeout.Time() > 0 {
		return c.RequestTimeout
	}

	d, _ := libdur.Parse(defRequestTimeout)
	return d
}

func (c Config) userAgent() string {
	if len(c.UserAgent) > 0 {
		return c.UserAgent
	}

	return DefaultUserAgent
}

// wantH1 and wantH2 resolve the configured protocol set.
func (c Config) wantH1() bool {
	if len(c.Protocols) == 0 {
		return true
	}

	for _, p := range c.Protocols {
		if p == "http/1.1" || p == "http/1.0" {
			return true
		}
	}

	return false
}

func (c Config) wantH10() bool {
	for _, p := range c.Protocols {
		if p == "http/1.0" {
			return true
		}
	}

	return false
}

func (c Config) wantH2() bool {
	if len(c.Protocols) == 0 {
		return c.Transport.TLS.Enable
	}

	for _, p := range c.Protocols {
		if p == "h2" {
			return true
		}
	}

	return false
}

// Validate checks the config against its constraints.
func (c Config) Validate() liberr.Error {
	var e = ErrorValidatorError.Error(nil)

	if err := libval.New().Struct(c); err != nil {
		if er, ok := err.(*libval.InvalidValidationError); ok {
			e.Add(er)
		}

		for _, er := range err.(libval.ValidationErrors) {
			//nolint #goerr113
			e.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", er.Namespace(), er.ActualTag()))
		}
	}

	if pe := c.Pool.Validate(); pe != nil {
		if e == nil {
			return pe
		}

		e.Add(pe)
	}

	if !e.HasParent() {
		e = nil
	}

	return e
}
