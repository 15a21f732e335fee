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

// Package intercept implements the exchange interceptor pipeline: a chain of
// composable functions that may mutate the request before it is sent,
// short-circuit the wire with a synthesized response, or install response
// payload transformers applied once the real body arrives.
package intercept

import (
	"context"

	liberr "github.com/nabbar/golib/errors"
)

// Interceptor inspects and mutates an intercepted exchange. Returning
// (nil, nil) short-circuits the chain: the synthesized response set on the
// exchange is delivered and no connection is acquired.
type Interceptor func(ctx context.Context, ie *Exchange) (*Exchange, liberr.Error)

// Compose chains interceptors left-to-right into one. The composed
// interceptor stops at the first short-circuit or error.
func Compose(list ...Interceptor) Interceptor {
	return func(ctx context.Context, ie *Exchange) (*Exchange, liberr.Error) {
		cur := ie

		for _, f := range list {
			if f == nil {
				continue
			}

			n, err := f(ctx, cur)
			if err != nil {
				return nil, err
			}

			if n == nil {
				return nil, nil
			}

			cur = n
		}

		return cur, nil
	}
}
