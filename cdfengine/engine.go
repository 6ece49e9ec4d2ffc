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

// Package cdfengine is an ncfile.Engine that reads and writes netCDF
// classic and 64-bit offset datasets in pure Go, either in files on an
// afero filesystem or in memory. It behaves like a netCDF library built
// without HDF5: NetCDF-4 requests fail with ENOTBUILT.
package cdfengine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/ctessum/cdf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncfile"
	"github.com/spf13/afero"
)

// firstID is the first dataset id handed out. netCDF ids are positive
// and never equal to -1.
const firstID = 1 << 16

// DefaultMaxSessions is the number of sessions an Engine allows at once
// when Options.MaxSessions is zero.
const DefaultMaxSessions = 1024

var hdf5Signature = []byte("\x89HDF\r\n\x1a\n")

// Options configure an Engine.
type Options struct {
	// Fs holds disk-backed datasets. The default is the OS filesystem.
	Fs afero.Fs

	// Log receives session and recovery messages. The default is
	// logrus.StandardLogger().
	Log logrus.FieldLogger

	// Registerer, if set, receives the engine metrics.
	Registerer prometheus.Registerer

	// MaxSessions limits the number of open sessions. Opening more
	// fails with ENFILE.
	MaxSessions int
}

// Engine is an ncfile.Engine. It is safe for concurrent use.
type Engine struct {
	fs      afero.Fs
	log     logrus.FieldLogger
	metrics *engineMetrics
	max     int
	pool    bufferPool

	mu       sync.Mutex // guards sessions and next
	sessions map[int]*session
	next     int
}

var _ ncfile.Engine = (*Engine)(nil)
var _ ncfile.Freer = (*Engine)(nil)

// New returns a new Engine.
func New(o Options) *Engine {
	e := &Engine{
		fs:       o.Fs,
		log:      o.Log,
		metrics:  newMetrics(o.Registerer),
		max:      o.MaxSessions,
		sessions: make(map[int]*session),
		next:     firstID,
	}
	if e.fs == nil {
		e.fs = afero.NewOsFs()
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.max <= 0 {
		e.max = DefaultMaxSessions
	}
	return e
}

// A session is one open dataset.
type session struct {
	mu       sync.Mutex
	path     string
	format   int
	writable bool
	define   bool
	schema   *schema   // non-nil in define mode
	file     *cdf.File // non-nil in data mode
	store    storage
	mem      *memStorage // nil for disk sessions
}

func (s *session) backing() string {
	if s.mem != nil {
		return "memory"
	}
	return "disk"
}

// call runs fn, turning a panic into EINTERNAL and recording the result.
func (e *Engine) call(op string, fn func() ncfile.Status) (st ncfile.Status) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{
				"op":    op,
				"panic": fmt.Sprint(r),
			}).Error("cdfengine: recovered from panic")
			st = ncfile.EINTERNAL
		}
		e.metrics.observe(op, st)
	}()
	return fn()
}

// withSession runs fn with the session for id locked.
func (e *Engine) withSession(op string, id int, fn func(*session) ncfile.Status) ncfile.Status {
	return e.call(op, func() ncfile.Status {
		e.mu.Lock()
		s, ok := e.sessions[id]
		e.mu.Unlock()
		if !ok {
			return ncfile.EBADID
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn(s)
	})
}

func (e *Engine) full() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions) >= e.max
}

func (e *Engine) add(s *session) (int, ncfile.Status) {
	e.mu.Lock()
	if len(e.sessions) >= e.max {
		e.mu.Unlock()
		return -1, ncfile.ENFILE
	}
	id := e.next
	e.next++
	e.sessions[id] = s
	e.mu.Unlock()
	e.metrics.opened(s.backing())
	e.log.WithFields(logrus.Fields{
		"id":      id,
		"path":    s.path,
		"backing": s.backing(),
		"format":  s.format,
	}).Debug("cdfengine: opened dataset")
	return id, ncfile.NoErr
}

func (e *Engine) remove(id int, s *session) {
	e.mu.Lock()
	delete(e.sessions, id)
	e.mu.Unlock()
	e.metrics.closed(s.backing())
	e.log.WithFields(logrus.Fields{
		"id":      id,
		"path":    s.path,
		"backing": s.backing(),
	}).Debug("cdfengine: closed dataset")
}

// Sessions returns the number of open sessions.
func (e *Engine) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// errStatus maps a Go error to the status the C library would report.
func errStatus(err error) ncfile.Status {
	var errno syscall.Errno
	switch {
	case err == nil:
		return ncfile.NoErr
	case errors.Is(err, errLocked):
		return ncfile.ENOMEM
	case os.IsNotExist(err):
		return ncfile.Status(syscall.ENOENT)
	case os.IsExist(err):
		return ncfile.EEXIST
	case os.IsPermission(err):
		return ncfile.Status(syscall.EACCES)
	case errors.As(err, &errno):
		return ncfile.Status(errno)
	}
	return ncfile.EIO
}

// createFormat returns the format code requested by create flags.
func createFormat(flags int) (int, ncfile.Status) {
	switch {
	case flags&ncfile.NetCDF4 != 0 && flags&ncfile.Offset64Bit != 0:
		return 0, ncfile.EINVAL
	case flags&ncfile.NetCDF4 != 0:
		return 0, ncfile.ENOTBUILT
	case flags&ncfile.Offset64Bit != 0:
		return ncfile.Format64BitOffset, ncfile.NoErr
	}
	return ncfile.FormatClassic, ncfile.NoErr
}

// sniff identifies the format of a dataset from its first bytes.
func sniff(r io.ReaderAt) (int, ncfile.Status) {
	var magic [8]byte
	n, _ := r.ReadAt(magic[:], 0)
	b := magic[:n]
	switch {
	case bytes.HasPrefix(b, hdf5Signature):
		return 0, ncfile.ENOTBUILT
	case bytes.HasPrefix(b, []byte("CDF\x01")):
		return ncfile.FormatClassic, ncfile.NoErr
	case bytes.HasPrefix(b, []byte("CDF\x02")):
		return ncfile.Format64BitOffset, ncfile.NoErr
	case bytes.HasPrefix(b, []byte("CDF\x05")):
		// CDF-5 needs a library built with it.
		return 0, ncfile.ENOTBUILT
	}
	return 0, ncfile.ENOTNC
}

// Open implements ncfile.Engine.
func (e *Engine) Open(path string, flags int) (id int, st ncfile.Status) {
	id = -1
	st = e.call("open", func() ncfile.Status {
		if e.full() {
			return ncfile.ENFILE
		}
		writable := flags&ncfile.ReadWrite != 0
		mode := os.O_RDONLY
		if writable {
			mode = os.O_RDWR
		}
		f, err := e.fs.OpenFile(path, mode, 0)
		if err != nil {
			return errStatus(err)
		}
		s := &session{path: path, writable: writable, store: diskStorage{f: f}}
		if st := e.load(s); st != ncfile.NoErr {
			f.Close()
			return st
		}
		var st ncfile.Status
		if id, st = e.add(s); st != ncfile.NoErr {
			f.Close()
		}
		return st
	})
	return id, st
}

// load reads the header of an existing dataset into s.
func (e *Engine) load(s *session) ncfile.Status {
	format, st := sniff(s.store)
	if st != ncfile.NoErr {
		return st
	}
	f, err := cdf.Open(s.store)
	if err != nil {
		return ncfile.ENOTNC
	}
	s.format = format
	s.file = f
	return ncfile.NoErr
}

// Create implements ncfile.Engine.
func (e *Engine) Create(path string, flags int) (id int, st ncfile.Status) {
	id = -1
	st = e.call("create", func() ncfile.Status {
		format, st := createFormat(flags)
		if st != ncfile.NoErr {
			return st
		}
		if e.full() {
			return ncfile.ENFILE
		}
		if flags&ncfile.NoClobber != 0 {
			if _, err := e.fs.Stat(path); err == nil {
				return ncfile.EEXIST
			} else if !os.IsNotExist(err) {
				return errStatus(err)
			}
		}
		f, err := e.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
		if err != nil {
			return errStatus(err)
		}
		s := &session{
			path:     path,
			format:   format,
			writable: true,
			define:   true,
			schema:   &schema{format: format},
			store:    diskStorage{f: f},
		}
		if id, st = e.add(s); st != ncfile.NoErr {
			f.Close()
		}
		return st
	})
	return id, st
}

// endDefine writes the staged schema of s and switches it to data mode.
// A locked memory buffer that cannot hold the result is left untouched
// and ENOMEM is returned.
func (e *Engine) endDefine(s *session) ncfile.Status {
	if s.mem != nil && s.mem.locked {
		probe := &sizeProbe{r: s.store}
		if err := s.schema.write(probe); err != nil {
			return ncfile.EINVAL
		}
		if probe.end > int64(cap(s.mem.data)) {
			return ncfile.ENOMEM
		}
	}
	if err := s.schema.write(s.store); err != nil {
		if errors.Is(err, errLocked) {
			return ncfile.ENOMEM
		}
		return errStatus(err)
	}
	f, err := cdf.Open(s.store)
	if err != nil {
		return ncfile.EINTERNAL
	}
	s.file = f
	s.schema = nil
	s.define = false
	return ncfile.NoErr
}

// updateNumRecs writes the record count implied by the size of the
// dataset into its header.
func (s *session) updateNumRecs() error {
	if !s.writable || s.file == nil {
		return nil
	}
	size, err := s.store.size()
	if err != nil {
		return err
	}
	n := s.file.Header.NumRecs(size)
	if n >= 1<<31 || n < 0 {
		n = -1
	}
	buf := [4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	_, err = s.store.WriteAt(buf[:], 4)
	return err
}

// finish leaves define mode if needed and brings the header up to date.
func (e *Engine) finish(s *session) ncfile.Status {
	if s.define {
		if st := e.endDefine(s); st != ncfile.NoErr {
			return st
		}
	}
	if err := s.updateNumRecs(); err != nil {
		return errStatus(err)
	}
	return ncfile.NoErr
}

// Close implements ncfile.Engine. The session ends even if the final
// write fails. Closing an in-memory session discards its image.
func (e *Engine) Close(id int) ncfile.Status {
	return e.withSession("close", id, func(s *session) ncfile.Status {
		defer e.remove(id, s)
		st := e.finish(s)
		if err := s.store.sync(); err != nil && st == ncfile.NoErr {
			st = errStatus(err)
		}
		if err := s.store.close(); err != nil && st == ncfile.NoErr {
			st = errStatus(err)
		}
		if s.mem != nil && !s.mem.locked {
			e.pool.put(s.mem.data)
			s.mem.data = nil
		}
		return st
	})
}

// Sync implements ncfile.Engine.
func (e *Engine) Sync(id int) ncfile.Status {
	return e.withSession("sync", id, func(s *session) ncfile.Status {
		if s.define {
			return ncfile.EINDEFINE
		}
		if err := s.updateNumRecs(); err != nil {
			return errStatus(err)
		}
		return errStatus(s.store.sync())
	})
}

// Enddef implements ncfile.Engine.
func (e *Engine) Enddef(id int) ncfile.Status {
	return e.withSession("enddef", id, func(s *session) ncfile.Status {
		switch {
		case !s.writable:
			return ncfile.EPERM
		case !s.define:
			return ncfile.ENOTINDEFINE
		}
		return e.endDefine(s)
	})
}

// InqFormat implements ncfile.Engine. For a created dataset this is the
// requested format.
func (e *Engine) InqFormat(id int) (format int, st ncfile.Status) {
	st = e.withSession("inq_format", id, func(s *session) ncfile.Status {
		format = s.format
		return ncfile.NoErr
	})
	return format, st
}

func defining(s *session) ncfile.Status {
	switch {
	case !s.writable:
		return ncfile.EPERM
	case !s.define:
		return ncfile.ENOTINDEFINE
	}
	return ncfile.NoErr
}

// DefDim implements ncfile.Engine. A length of zero defines the
// unlimited dimension.
func (e *Engine) DefDim(id int, name string, length int) ncfile.Status {
	return e.withSession("def_dim", id, func(s *session) ncfile.Status {
		if st := defining(s); st != ncfile.NoErr {
			return st
		}
		return s.schema.defDim(name, length)
	})
}

// DefVar implements ncfile.Engine.
func (e *Engine) DefVar(id int, name string, dims []string, zero interface{}) ncfile.Status {
	return e.withSession("def_var", id, func(s *session) ncfile.Status {
		if st := defining(s); st != ncfile.NoErr {
			return st
		}
		return s.schema.defVar(name, dims, zero)
	})
}

// PutAtt implements ncfile.Engine. Attributes can only be set in define
// mode.
func (e *Engine) PutAtt(id int, v, name string, value interface{}) ncfile.Status {
	return e.withSession("put_att", id, func(s *session) ncfile.Status {
		if st := defining(s); st != ncfile.NoErr {
			return st
		}
		return s.schema.putAtt(v, name, value)
	})
}
