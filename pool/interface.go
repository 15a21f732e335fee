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

// Package pool implements the per-endpoint bounded connection pool: load
// based selection over a sampled subset of active connections, waiter
// buffering with timeouts, growth with parked connection revival, a periodic
// parking and eviction cycle, and graceful shutdown. All pool state is
// mutated by a single executor goroutine fed by a command queue.
package pool

import (
	"container/list"
	"context"
	"time"

	libatm "github.com/nabbar/golib/atomic"
	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"

	libexc "github.com/nabbar/httpclient/exchange"
	libptc "github.com/nabbar/httpclient/protocol"
)

// FuncDial opens one fresh connection for the pool.
type FuncDial func(ctx context.Context) (libptc.Connection, liberr.Error)

// Handle is a reservation on one pooled connection. Releasing it returns the
// allocation to the pool; a handle releases at most once.
type Handle interface {
	// Connection returns the reserved connection.
	Connection() libptc.Connection

	// Send starts the exchange on the reserved connection and schedules the
	// release of the handle when the exchange terminates.
	Send(ctx context.Context, ex *libexc.Exchange) liberr.Error

	// Release returns the reservation without use.
	Release()
}

// Pool is a bounded per-endpoint connection pool.
type Pool interface {
	// Acquire reserves a connection, waiting in the buffer when the pool is
	// saturated. It fails with ErrorConnectionTimeout after ConnectTimeout,
	// with ErrorPoolFull when the buffer refuses the waiter, and with
	// ErrorPoolClosed after shutdown.
	Acquire(ctx context.Context) (Handle, liberr.Error)

	// Size returns the number of active connections.
	Size() int

	// LoadFactor returns the mean load factor over active connections.
	LoadFactor() float64

	// ActiveRequests returns connecting + allocated + queued.
	ActiveRequests() int

	// Shutdown closes every connection immediately.
	Shutdown()

	// ShutdownGracefully drains every active and parked connection.
	ShutdownGracefully(ctx context.Context) liberr.Error
}

// New builds a pool dialing through the given func. The config is
// normalized: choice count raised to [1, MaxSize], load threshold clamped to
// [0,1], defaults applied.
func New(cfg Config, dial FuncDial, log liblog.FuncLog) (Pool, liberr.Error) {
	if dial == nil {
		return nil, ErrorParamsEmpty.Error(nil)
	}

	p := &pool{
		g:   cfg.normalize(),
		d:   dial,
		log: log,
		q:   make(chan func(), 256),
		w:   list.New(),
		h:   make(chan struct{}),
		cw:  libatm.NewValue[int](),
		cc:  libatm.NewValue[int](),
		ca:  libatm.NewValue[int](),
		ct:  libatm.NewValue[int](),
	}

	go p.run()
	go p.cleaner()

	return p, nil
}

type entry struct {
	c libptc.Connection
	a int       // allocated
	k int       // capacity
	i int       // index in the active array
	p bool      // parked
	r bool      // removed
	u time.Time // last released at
}

func (e *entry) load() float64 {
	if e.k <= 0 {
		return 1
	}

	return float64(e.a) / float64(e.k)
}
