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

import "github.com/spatialmodel/ncfile"

// OpenMem implements ncfile.Engine. An unlocked image becomes the
// engine's to grow and eventually hand back from CloseMem. A locked image
// stays at mem.Size bytes for the life of the session.
func (e *Engine) OpenMem(path string, flags int, mem ncfile.Memio) (id int, st ncfile.Status) {
	id = -1
	st = e.call("open_mem", func() ncfile.Status {
		if mem.Memory == nil || mem.Size < 0 || mem.Size > cap(mem.Memory) {
			return ncfile.EINVAL
		}
		m := &memStorage{
			data:   mem.Memory[:mem.Size],
			locked: mem.Flags&ncfile.MemioLocked != 0,
			pool:   &e.pool,
		}
		if m.locked {
			m.data = mem.Memory[:mem.Size:mem.Size]
		}
		s := &session{
			path:     path,
			writable: flags&ncfile.ReadWrite != 0,
			store:    m,
			mem:      m,
		}
		if st := e.load(s); st != ncfile.NoErr {
			return st
		}
		var st ncfile.Status
		id, st = e.add(s)
		return st
	})
	return id, st
}

// CreateMem implements ncfile.Engine. With no buffer, mem.Size is the
// initial capacity of an engine-allocated image. A locked buffer must be
// given and limits the image to mem.Size bytes.
func (e *Engine) CreateMem(path string, flags int, mem ncfile.Memio) (id int, st ncfile.Status) {
	id = -1
	st = e.call("create_mem", func() ncfile.Status {
		format, st := createFormat(flags)
		if st != ncfile.NoErr {
			return st
		}
		if mem.Size < 0 || (mem.Memory != nil && mem.Size > cap(mem.Memory)) {
			return ncfile.EINVAL
		}
		m := &memStorage{locked: mem.Flags&ncfile.MemioLocked != 0, pool: &e.pool}
		switch {
		case m.locked:
			if mem.Memory == nil {
				return ncfile.EINVAL
			}
			m.data = mem.Memory[:0:mem.Size]
		case mem.Memory != nil:
			m.data = mem.Memory[:0]
		default:
			m.data = e.pool.get(mem.Size)[:0]
		}
		s := &session{
			path:     path,
			format:   format,
			writable: true,
			define:   true,
			schema:   &schema{format: format},
			store:    m,
			mem:      m,
		}
		id, st = e.add(s)
		return st
	})
	return id, st
}

// CloseMem implements ncfile.Engine. It fails with EDISKLESS for a disk
// session and leaves the session open. If the final write fails the
// session also stays open, so it can still be ended with Close.
func (e *Engine) CloseMem(id int) (mem ncfile.Memio, st ncfile.Status) {
	st = e.withSession("close_mem", id, func(s *session) ncfile.Status {
		if s.mem == nil {
			return ncfile.EDISKLESS
		}
		if st := e.finish(s); st != ncfile.NoErr {
			return st
		}
		mem = ncfile.Memio{Size: len(s.mem.data), Memory: s.mem.data}
		if s.mem.locked {
			mem.Flags = ncfile.MemioLocked
		}
		s.mem.data = nil
		e.remove(id, s)
		return ncfile.NoErr
	})
	return mem, st
}

// Free implements ncfile.Freer. buf must have come from CloseMem of an
// unlocked session and must not be used afterwards.
func (e *Engine) Free(buf []byte) {
	e.pool.put(buf)
}
