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

package pool

import (
	"fmt"

	libval "github.com/go-playground/validator/v10"
	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"
)

// Config tunes one connection pool.
type Config struct {
	// MaxSize bounds size + connecting. Zero applies 2.
	MaxSize int `json:"max_size" yaml:"max_size" toml:"max_size" mapstructure:"max_size" validate:"min=0"`

	// BufferSize bounds pending waiters. Negative means unbounded.
	BufferSize int `json:"buffer_size" yaml:"buffer_size" toml:"buffer_size" mapstructure:"buffer_size"`

	// CleanPeriod is the parking/eviction cycle period. Zero applies 1s.
	CleanPeriod libdur.Duration `json:"clean_period,omitempty" yaml:"clean_period,omitempty" toml:"clean_period,omitempty" mapstructure:"clean_period,omitempty"`

	// ConnectTimeout bounds a waiter's wait for a handle.
	ConnectTimeout libdur.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty" toml:"connect_timeout,omitempty" mapstructure:"connect_timeout,omitempty"`

	// KeepAliveTimeout is the parked connection expiration delay.
	KeepAliveTimeout libdur.Duration `json:"keep_alive_timeout,omitempty" yaml:"keep_alive_timeout,omitempty" toml:"keep_alive_timeout,omitempty" mapstructure:"keep_alive_timeout,omitempty"`

	// SelectChoiceCount is the number of candidates sampled per selection.
	// It is raised to 1 and capped to MaxSize at construction.
	SelectChoiceCount int `json:"select_choice_count,omitempty" yaml:"select_choice_count,omitempty" toml:"select_choice_count,omitempty" mapstructure:"select_choice_count,omitempty"`

	// SelectLoadThreshold is the load factor above which the pool prefers
	// growing over reusing. Clamped to [0,1] at construction.
	SelectLoadThreshold float64 `json:"select_load_threshold,omitempty" yaml:"select_load_threshold,omitempty" toml:"select_load_threshold,omitempty" mapstructure:"select_load_threshold,omitempty"`
}

const (
	defMaxSize     = 2
	defCleanPeriod = "1s"
)

// normalize applies defaults and the constructor-time clamps.
func (c Config) normalize() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = defMaxSize
	}

	if c.CleanPeriod.Time() <= 0 {
		if d, e := libdur.Parse(defCleanPeriod); e == nil {
			c.CleanPeriod = d
		}
	}

	if c.SelectChoiceCount < 1 {
		c.SelectChoiceCount = 1
	}

	if c.SelectChoiceCount > c.MaxSize {
		c.SelectChoiceCount = c.MaxSize
	}

	if c.SelectLoadThreshold < 0 {
		c.SelectLoadThreshold = 0
	}

	if c.SelectLoadThreshold > 1 {
		c.SelectLoadThreshold = 1
	}

	return c
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
