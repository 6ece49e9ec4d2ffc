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

// Package nctest provides an in-process ncfile.Engine for tests. It
// supports every format, keeps "files" in a map, records every call and
// can be told to fail or panic on chosen operations.
package nctest

import (
	"fmt"
	"sync"
	"syscall"

	"github.com/spatialmodel/ncfile"
)

// Names of the operations, as used in Call.Op, Engine.Fail and
// Engine.Panic.
const (
	OpOpen      = "open"
	OpCreate    = "create"
	OpOpenMem   = "open_mem"
	OpCreateMem = "create_mem"
	OpClose     = "close"
	OpCloseMem  = "close_mem"
	OpSync      = "sync"
	OpEnddef    = "enddef"
	OpInqFormat = "inq_format"
	OpDefDim    = "def_dim"
	OpDefVar    = "def_var"
	OpPutAtt    = "put_att"
	OpPutVar    = "put_var"
	OpGetVar    = "get_var"
)

// HeaderSize is the size of the image written for a new in-memory
// dataset.
const HeaderSize = 32

var magic = [4]byte{'F', 'A', 'K', 'E'}

// Call is a record of one engine call.
type Call struct {
	Op    string
	ID    int
	Path  string
	Flags int
}

// Engine is a fake ncfile.Engine. The zero value is ready to use.
type Engine struct {
	// Fail makes the named operation return the given status without
	// doing anything.
	Fail map[string]ncfile.Status

	// Panic makes the named operation panic.
	Panic map[string]bool

	// GrowBy is the number of bytes each PutVar adds to an in-memory
	// image. The default is 16.
	GrowBy int

	// Calls holds every call made to the engine, in order.
	Calls []Call

	// Freed holds every buffer passed to Free.
	Freed [][]byte

	mu       sync.Mutex
	files    map[string]*dataset
	sessions map[int]*session
	next     int
}

type dataset struct {
	format int
	dims   map[string]int
	vars   map[string]interface{}
	atts   map[string]interface{}
}

func newDataset(format int) *dataset {
	return &dataset{
		format: format,
		dims:   make(map[string]int),
		vars:   make(map[string]interface{}),
		atts:   make(map[string]interface{}),
	}
}

type session struct {
	path     string
	ds       *dataset
	writable bool
	define   bool
	image    []byte
	locked   bool
	inMemory bool
}

var _ ncfile.Engine = (*Engine)(nil)
var _ ncfile.Freer = (*Engine)(nil)

// begin records the call and applies any injected failure. The caller
// must hold e.mu.
func (e *Engine) begin(op string, id int, path string, flags int) ncfile.Status {
	if e.files == nil {
		e.files = make(map[string]*dataset)
		e.sessions = make(map[int]*session)
		e.next = 10
	}
	e.Calls = append(e.Calls, Call{Op: op, ID: id, Path: path, Flags: flags})
	if e.Panic[op] {
		panic(fmt.Sprintf("nctest: injected panic in %s", op))
	}
	if st, ok := e.Fail[op]; ok {
		return st
	}
	return ncfile.NoErr
}

func (e *Engine) add(s *session) int {
	id := e.next
	e.next++
	e.sessions[id] = s
	return id
}

func formatFromFlags(flags int) (int, ncfile.Status) {
	switch {
	case flags&ncfile.NetCDF4 != 0 && flags&ncfile.Offset64Bit != 0:
		return 0, ncfile.EINVAL
	case flags&ncfile.NetCDF4 != 0 && flags&ncfile.ClassicModel != 0:
		return ncfile.FormatNetCDF4Classic, ncfile.NoErr
	case flags&ncfile.NetCDF4 != 0:
		return ncfile.FormatNetCDF4, ncfile.NoErr
	case flags&ncfile.Offset64Bit != 0:
		return ncfile.Format64BitOffset, ncfile.NoErr
	}
	return ncfile.FormatClassic, ncfile.NoErr
}

// Open implements ncfile.Engine.
func (e *Engine) Open(path string, flags int) (int, ncfile.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpOpen, -1, path, flags); st != ncfile.NoErr {
		return -1, st
	}
	ds, ok := e.files[path]
	if !ok {
		return -1, ncfile.Status(syscall.ENOENT)
	}
	return e.add(&session{path: path, ds: ds, writable: flags&ncfile.ReadWrite != 0}), ncfile.NoErr
}

// Create implements ncfile.Engine.
func (e *Engine) Create(path string, flags int) (int, ncfile.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpCreate, -1, path, flags); st != ncfile.NoErr {
		return -1, st
	}
	format, st := formatFromFlags(flags)
	if st != ncfile.NoErr {
		return -1, st
	}
	if _, ok := e.files[path]; ok && flags&ncfile.NoClobber != 0 {
		return -1, ncfile.EEXIST
	}
	ds := newDataset(format)
	e.files[path] = ds
	return e.add(&session{path: path, ds: ds, writable: true, define: true}), ncfile.NoErr
}

// OpenMem implements ncfile.Engine. The image must have been produced by
// this package.
func (e *Engine) OpenMem(path string, flags int, mem ncfile.Memio) (int, ncfile.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpOpenMem, -1, path, flags); st != ncfile.NoErr {
		return -1, st
	}
	if mem.Memory == nil || mem.Size > cap(mem.Memory) {
		return -1, ncfile.EINVAL
	}
	img := mem.Memory[:mem.Size]
	if len(img) < HeaderSize || [4]byte{img[0], img[1], img[2], img[3]} != magic {
		return -1, ncfile.ENOTNC
	}
	s := &session{
		path:     path,
		ds:       newDataset(int(img[4])),
		writable: flags&ncfile.ReadWrite != 0,
		image:    img,
		locked:   mem.Flags&ncfile.MemioLocked != 0,
		inMemory: true,
	}
	if s.locked {
		s.image = mem.Memory[:mem.Size:mem.Size]
	}
	return e.add(s), ncfile.NoErr
}

// CreateMem implements ncfile.Engine.
func (e *Engine) CreateMem(path string, flags int, mem ncfile.Memio) (int, ncfile.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpCreateMem, -1, path, flags); st != ncfile.NoErr {
		return -1, st
	}
	format, st := formatFromFlags(flags)
	if st != ncfile.NoErr {
		return -1, st
	}
	locked := mem.Flags&ncfile.MemioLocked != 0
	var img []byte
	switch {
	case locked:
		if mem.Memory == nil || mem.Size > cap(mem.Memory) {
			return -1, ncfile.EINVAL
		}
		img = mem.Memory[:0:mem.Size]
	case mem.Memory != nil:
		img = mem.Memory[:0]
	default:
		img = make([]byte, 0, mem.Size)
	}
	if HeaderSize > cap(img) {
		if locked {
			return -1, ncfile.ENOMEM
		}
		img = make([]byte, 0, HeaderSize)
	}
	img = img[:HeaderSize]
	copy(img, magic[:])
	img[4] = byte(format)
	for i := 5; i < HeaderSize; i++ {
		img[i] = 0
	}
	s := &session{
		path:     path,
		ds:       newDataset(format),
		writable: true,
		define:   true,
		image:    img,
		locked:   locked,
		inMemory: true,
	}
	return e.add(s), ncfile.NoErr
}

// Close implements ncfile.Engine.
func (e *Engine) Close(id int) ncfile.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpClose, id, "", 0); st != ncfile.NoErr {
		return st
	}
	if _, ok := e.sessions[id]; !ok {
		return ncfile.EBADID
	}
	delete(e.sessions, id)
	return ncfile.NoErr
}

// CloseMem implements ncfile.Engine.
func (e *Engine) CloseMem(id int) (ncfile.Memio, ncfile.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpCloseMem, id, "", 0); st != ncfile.NoErr {
		return ncfile.Memio{}, st
	}
	s, ok := e.sessions[id]
	if !ok {
		return ncfile.Memio{}, ncfile.EBADID
	}
	if !s.inMemory {
		return ncfile.Memio{}, ncfile.EDISKLESS
	}
	delete(e.sessions, id)
	mem := ncfile.Memio{Size: len(s.image), Memory: s.image}
	if s.locked {
		mem.Flags = ncfile.MemioLocked
	}
	return mem, ncfile.NoErr
}

// Sync implements ncfile.Engine.
func (e *Engine) Sync(id int) ncfile.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpSync, id, "", 0); st != ncfile.NoErr {
		return st
	}
	s, ok := e.sessions[id]
	if !ok {
		return ncfile.EBADID
	}
	if s.define {
		return ncfile.EINDEFINE
	}
	return ncfile.NoErr
}

// Enddef implements ncfile.Engine.
func (e *Engine) Enddef(id int) ncfile.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpEnddef, id, "", 0); st != ncfile.NoErr {
		return st
	}
	s, ok := e.sessions[id]
	switch {
	case !ok:
		return ncfile.EBADID
	case !s.writable:
		return ncfile.EPERM
	case !s.define:
		return ncfile.ENOTINDEFINE
	}
	s.define = false
	return ncfile.NoErr
}

// InqFormat implements ncfile.Engine.
func (e *Engine) InqFormat(id int) (int, ncfile.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpInqFormat, id, "", 0); st != ncfile.NoErr {
		return 0, st
	}
	s, ok := e.sessions[id]
	if !ok {
		return 0, ncfile.EBADID
	}
	return s.ds.format, ncfile.NoErr
}

// defining returns the session if it may be changed in define mode.
func (e *Engine) defining(id int) (*session, ncfile.Status) {
	s, ok := e.sessions[id]
	switch {
	case !ok:
		return nil, ncfile.EBADID
	case !s.writable:
		return nil, ncfile.EPERM
	case !s.define:
		return nil, ncfile.ENOTINDEFINE
	}
	return s, ncfile.NoErr
}

// DefDim implements ncfile.Engine.
func (e *Engine) DefDim(id int, name string, length int) ncfile.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpDefDim, id, "", 0); st != ncfile.NoErr {
		return st
	}
	s, st := e.defining(id)
	if st != ncfile.NoErr {
		return st
	}
	if _, ok := s.ds.dims[name]; ok {
		return ncfile.ENAMEINUSE
	}
	s.ds.dims[name] = length
	return ncfile.NoErr
}

// DefVar implements ncfile.Engine.
func (e *Engine) DefVar(id int, name string, dims []string, zero interface{}) ncfile.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpDefVar, id, "", 0); st != ncfile.NoErr {
		return st
	}
	s, st := e.defining(id)
	if st != ncfile.NoErr {
		return st
	}
	if _, ok := s.ds.vars[name]; ok {
		return ncfile.ENAMEINUSE
	}
	for _, d := range dims {
		if _, ok := s.ds.dims[d]; !ok {
			return ncfile.EBADDIM
		}
	}
	s.ds.vars[name] = zero
	return ncfile.NoErr
}

// PutAtt implements ncfile.Engine.
func (e *Engine) PutAtt(id int, v, name string, value interface{}) ncfile.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpPutAtt, id, "", 0); st != ncfile.NoErr {
		return st
	}
	s, st := e.defining(id)
	if st != ncfile.NoErr {
		return st
	}
	if _, ok := s.ds.vars[v]; v != "" && !ok {
		return ncfile.ENOTVAR
	}
	s.ds.atts[v+":"+name] = value
	return ncfile.NoErr
}

// PutVar implements ncfile.Engine. In-memory images grow by GrowBy bytes;
// a locked image that would outgrow its buffer is left untouched and
// ENOMEM is returned.
func (e *Engine) PutVar(id int, name string, values interface{}) ncfile.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpPutVar, id, "", 0); st != ncfile.NoErr {
		return st
	}
	s, ok := e.sessions[id]
	switch {
	case !ok:
		return ncfile.EBADID
	case !s.writable:
		return ncfile.EPERM
	case s.define:
		return ncfile.EINDEFINE
	}
	if _, ok := s.ds.vars[name]; !ok {
		return ncfile.ENOTVAR
	}
	if s.inMemory {
		grow := e.GrowBy
		if grow == 0 {
			grow = 16
		}
		n := len(s.image) + grow
		if n > cap(s.image) {
			if s.locked {
				return ncfile.ENOMEM
			}
			img := make([]byte, len(s.image), 2*n)
			copy(img, s.image)
			s.image = img
		}
		s.image = s.image[:n]
	}
	s.ds.vars[name] = values
	return ncfile.NoErr
}

// GetVar implements ncfile.Engine.
func (e *Engine) GetVar(id int, name string) (interface{}, ncfile.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.begin(OpGetVar, id, "", 0); st != ncfile.NoErr {
		return nil, st
	}
	s, ok := e.sessions[id]
	if !ok {
		return nil, ncfile.EBADID
	}
	v, ok := s.ds.vars[name]
	if !ok {
		return nil, ncfile.ENOTVAR
	}
	return v, ncfile.NoErr
}

// Free implements ncfile.Freer.
func (e *Engine) Free(buf []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Freed = append(e.Freed, buf)
}

// Valid reports whether id names an open session.
func (e *Engine) Valid(id int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[id]
	return ok
}

// Exists reports whether a dataset has been created at path.
func (e *Engine) Exists(path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.files[path]
	return ok
}

// Count returns the number of calls made to op.
func (e *Engine) Count(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	var n int
	for _, c := range e.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}
