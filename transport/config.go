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
	"fmt"

	libval "github.com/go-playground/validator/v10"
	libtls "github.com/nabbar/golib/certificates"
	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"
)

// ProxyType selects the tunneling scheme used to reach the remote endpoint.
type ProxyType string

const (
	ProxyNone   ProxyType = ""
	ProxyHTTP   ProxyType = "http"
	ProxySocks4 ProxyType = "socks4"
	ProxySocks5 ProxyType = "socks5"
)

// ConfigProxy describes an optional proxy tunnel with basic auth.
type ConfigProxy struct {
	Type     ProxyType `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty" mapstructure:"type,omitempty"`
	Address  string    `json:"address,omitempty" yaml:"address,omitempty" toml:"address,omitempty" mapstructure:"address,omitempty"`
	Username string    `json:"username,omitempty" yaml:"username,omitempty" toml:"username,omitempty" mapstructure:"username,omitempty"`
	Password string    `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty" mapstructure:"password,omitempty"`
}

// ConfigTLS enables TLS on the channel with the given material.
type ConfigTLS struct {
	Enable bool          `json:"enable" yaml:"enable" toml:"enable" mapstructure:"enable"`
	Config libtls.Config `json:"tls" yaml:"tls" toml:"tls" mapstructure:"tls"`
}

// Config describes how to open one channel to the remote endpoint.
type Config struct {
	LocalAddress   string            `json:"local_address,omitempty" yaml:"local_address,omitempty" toml:"local_address,omitempty" mapstructure:"local_address,omitempty"`
	RemoteAddress  string            `json:"remote_address" yaml:"remote_address" toml:"remote_address" mapstructure:"remote_address" validate:"required,hostname_port"`
	ServerName     string            `json:"server_name,omitempty" yaml:"server_name,omitempty" toml:"server_name,omitempty" mapstructure:"server_name,omitempty"`
	ConnectTimeout libdur.Duration   `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty" toml:"connect_timeout,omitempty" mapstructure:"connect_timeout,omitempty"`
	TLS            ConfigTLS         `json:"tls" yaml:"tls" toml:"tls" mapstructure:"tls"`
	Proxy          ConfigProxy       `json:"proxy,omitempty" yaml:"proxy,omitempty" toml:"proxy,omitempty" mapstructure:"proxy,omitempty"`
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

	if !e.HasParent() {
		e = nil
	}

	return e
}
