/*
Copyright © 2018 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package cdfengine

import "sync"

// Size classes of pooled image buffers. Larger buffers are allocated
// directly and dropped when freed.
const (
	smallBuffer  = 4 << 10
	mediumBuffer = 64 << 10
	largeBuffer  = 1 << 20
)

// bufferPool recycles the buffers behind engine-owned in-memory
// datasets.
type bufferPool struct {
	small, medium, large sync.Pool
}

func (p *bufferPool) class(n int) (*sync.Pool, int) {
	switch {
	case n <= smallBuffer:
		return &p.small, smallBuffer
	case n <= mediumBuffer:
		return &p.medium, mediumBuffer
	case n <= largeBuffer:
		return &p.large, largeBuffer
	}
	return nil, n
}

// get returns a zeroed buffer of length n.
func (p *bufferPool) get(n int) []byte {
	pool, size := p.class(n)
	if pool == nil {
		return make([]byte, n)
	}
	if b, ok := pool.Get().(*[]byte); ok {
		buf := (*b)[:n]
		for i := range buf {
			buf[i] = 0
		}
		return buf
	}
	return make([]byte, n, size)
}

// put returns buf to the pool if its capacity is one of the size
// classes.
func (p *bufferPool) put(buf []byte) {
	pool, size := p.class(cap(buf))
	if pool == nil || cap(buf) != size {
		return
	}
	buf = buf[:0]
	pool.Put(&buf)
}
