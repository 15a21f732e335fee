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
	"sort"
)

// clean runs the periodic parking and eviction cycle. Executor only.
//
// Candidates at or under the load threshold are bucketed by load factor;
// starting from the least loaded bucket, connections are parked while the
// remaining active capacity still covers the current allocations.
func (o *pool) clean() {
	if o.cl.Load() || o.cg.Load() {
		return
	}

	o.evict()

	if len(o.a) < 2 {
		return
	}

	var al, tc int

	for _, e := range o.a {
		al += e.a
		tc += e.k
	}

	const buckets = 10

	b := make([][]*entry, buckets)

	for _, e := range o.a {
		f := e.load()

		if f > o.g.SelectLoadThreshold {
			continue
		}

		i := int(f * buckets)
		if i >= buckets {
			i = buckets - 1
		}

		b[i] = append(b[i], e)
	}

	var park []*entry

	for i := 0; i < buckets; i++ {
		// deterministic order inside one bucket: least loaded first
		sort.SliceStable(b[i], func(x, y int) bool {
			return b[i][x].load() < b[i][y].load()
		})

		for _, e := range b[i] {
			if tc-e.k < al {
				// parking this one would leave allocations uncovered
				o.park(park)
				return
			}

			tc -= e.k
			park = append(park, e)
		}
	}

	o.park(park)
}

// park moves the given entries from the active array to the parked deque.
// Executor only.
func (o *pool) park(sel []*entry) {
	if len(sel) == 0 {
		return
	}

	for _, e := range sel {
		for i, x := range o.a {
			if x == e {
				o.a = append(o.a[:i], o.a[i+1:]...)
				break
			}
		}

		e.p = true
		o.p.PushBack(e)
	}

	for i, x := range o.a {
		x.i = i
	}

	o.publish()
}

// evict shuts down parked connections that are idle past the keep alive
// timeout, or whose transport already closed. Executor only.
func (o *pool) evict() {
	f := o.p.Front()

	for f != nil {
		n := f.Next()
		e := f.Value.(*entry)

		if e.c.IsClosed() || o.expired(e) {
			o.p.Remove(f)
			e.r = true
			e.c.Shutdown()
		}

		f = n
	}
}
