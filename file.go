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

package ncfile

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
)

// unsetID is the id of a File with no open session.
const unsetID = -1

// Backing says where the bytes behind a session live.
type Backing int

const (
	// NoBacking is the backing of a File with no open session.
	NoBacking Backing = iota
	// DiskBacked sessions are stored in a file.
	DiskBacked
	// MemoryBacked sessions are stored in a memory buffer.
	MemoryBacked
)

func (b Backing) String() string {
	switch b {
	case NoBacking:
		return "none"
	case DiskBacked:
		return "disk"
	case MemoryBacked:
		return "memory"
	}
	return fmt.Sprintf("Backing(%d)", int(b))
}

// File is a handle to one dataset session. The zero value is not usable;
// create Files with New or one of the Open functions.
//
// A File is not safe for concurrent use.
type File struct {
	engine  Engine
	id      int
	backing Backing

	// Only meaningful when backing == MemoryBacked.
	mem       []byte
	memSize   int
	ownership Ownership

	// Log receives failures that cannot be returned to the caller, for
	// example those that occur in Release. The default is
	// logrus.StandardLogger().
	Log logrus.FieldLogger
}

// New returns a File with no open session that will use e for every
// dataset it opens.
func New(e Engine) *File {
	f := &File{
		engine: e,
		id:     unsetID,
		Log:    logrus.StandardLogger(),
	}
	runtime.SetFinalizer(f, (*File).finalize)
	return f
}

// Open opens or creates the dataset at path in the given mode. Datasets
// are created in DefaultFormat.
func Open(e Engine, path string, mode Mode) (*File, error) {
	f := New(e)
	if err := f.Open(path, mode); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenFormat opens or creates the dataset at path in the given mode and
// format.
func OpenFormat(e Engine, path string, mode Mode, format Format) (*File, error) {
	f := New(e)
	if err := f.OpenFormat(path, mode, format); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenFlags opens the existing dataset at path with raw engine flags.
func OpenFlags(e Engine, path string, flags int) (*File, error) {
	f := New(e)
	if err := f.OpenFlags(path, flags); err != nil {
		return nil, err
	}
	return f, nil
}

// Create creates a dataset at path with raw engine flags.
func Create(e Engine, path string, flags int) (*File, error) {
	f := New(e)
	if err := f.Create(path, flags); err != nil {
		return nil, err
	}
	return f, nil
}

// ID returns the engine dataset id of the open session, or -1 if there
// is none. The id is what the group, variable and attribute layer works
// with.
func (f *File) ID() int { return f.id }

// IsNull reports whether f has no open session.
func (f *File) IsNull() bool { return f.backing == NoBacking }

// Backing returns where the open session is stored.
func (f *File) Backing() Backing { return f.backing }

// Engine returns the engine f opens datasets with.
func (f *File) Engine() Engine { return f.engine }

// OpenFlags closes any open session and opens the existing dataset at
// path with raw engine flags.
func (f *File) OpenFlags(path string, flags int) error {
	return f.openDisk(path, openSpec{call: callOpen, flags: flags})
}

// Create closes any open session and creates a dataset at path with raw
// engine flags.
func (f *File) Create(path string, flags int) error {
	return f.openDisk(path, openSpec{call: callCreate, flags: flags})
}

// Open closes any open session and opens or creates the dataset at path.
// Read and Write open an existing dataset; Replace and NewFile create one
// in DefaultFormat.
func (f *File) Open(path string, mode Mode) error {
	spec, ok := modeTable[mode]
	if !ok {
		return fmt.Errorf("ncfile: invalid mode %v", mode)
	}
	return f.openDisk(path, spec)
}

// OpenFormat closes any open session and opens or creates the dataset at
// path using the given format.
func (f *File) OpenFormat(path string, mode Mode, format Format) error {
	spec, err := lookup(diskTable, mode, format)
	if err != nil {
		return err
	}
	return f.openDisk(path, spec)
}

func (f *File) openDisk(path string, spec openSpec) error {
	if err := f.closeCurrent(); err != nil {
		return err
	}
	var id int
	var st Status
	var op string
	switch spec.call {
	case callOpen:
		op = "nc_open"
		id, st = f.engine.Open(path, spec.flags)
	case callCreate:
		op = "nc_create"
		id, st = f.engine.Create(path, spec.flags)
	}
	if err := check(st, op, path); err != nil {
		return err
	}
	f.id = id
	f.backing = DiskBacked
	return nil
}

// closeCurrent ends the open session, if any, before a new one is
// opened. A memory image dropped here has no caller to receive it, so it
// is released the same way Release releases it.
func (f *File) closeCurrent() error {
	switch f.backing {
	case DiskBacked:
		return f.Close()
	case MemoryBacked:
		img, err := f.CloseMemory()
		if err != nil {
			return err
		}
		f.freeImage(img)
		f.Log.WithFields(logrus.Fields{
			"size":      img.Size,
			"ownership": img.Ownership,
		}).Debug("ncfile: in-memory dataset discarded by reopen")
	}
	return nil
}

// Close closes a disk-backed session. It does nothing if f has no open
// session and returns ErrMemoryBacked, leaving f unchanged, if the
// session is memory-backed.
func (f *File) Close() error {
	switch f.backing {
	case NoBacking:
		return nil
	case MemoryBacked:
		return ErrMemoryBacked
	}
	err := check(f.engine.Close(f.id), "nc_close", "")
	f.reset()
	return err
}

// Sync flushes the open session to its storage without closing it.
func (f *File) Sync() error {
	return check(f.engine.Sync(f.id), "nc_sync", "")
}

// Enddef leaves define mode. The classic data model requires this before
// variable data can be read or written.
func (f *File) Enddef() error {
	return check(f.engine.Enddef(f.id), "nc_enddef", "")
}

// Format returns the format of the open dataset.
func (f *File) Format() (Format, error) {
	code, st := f.engine.InqFormat(f.id)
	if err := check(st, "nc_inq_format", ""); err != nil {
		return 0, err
	}
	switch code {
	case FormatClassic:
		return Classic, nil
	case Format64BitOffset:
		return Classic64, nil
	case FormatNetCDF4:
		return NC4, nil
	case FormatNetCDF4Classic:
		return NC4Classic, nil
	}
	return 0, fmt.Errorf("ncfile: engine reported unknown format code %d", code)
}

func (f *File) reset() {
	f.id = unsetID
	f.backing = NoBacking
	f.mem = nil
	f.memSize = 0
	f.ownership = 0
}

// Release closes whatever session f has open and never fails: disk
// sessions are closed as by Close and memory sessions as by CloseMemory,
// with any buffer the caller would have received handed back to the
// engine. Errors, including panics raised by the engine, are written to
// f.Log. f is left with no open session even when the engine fails.
//
// Release is meant to be deferred right after a File is opened.
func (f *File) Release() {
	defer func() {
		if r := recover(); r != nil {
			f.logRelease(fmt.Errorf("ncfile: engine panic: %v", r))
			f.reset()
		}
	}()
	switch f.backing {
	case DiskBacked:
		if err := f.Close(); err != nil {
			f.logRelease(err)
		}
	case MemoryBacked:
		img, err := f.CloseMemory()
		if err != nil {
			f.logRelease(err)
			// Abandon the image; the session itself must still end.
			if err := check(f.engine.Close(f.id), "nc_close", ""); err != nil {
				f.logRelease(err)
			}
			f.reset()
			return
		}
		f.freeImage(img)
	}
}

func (f *File) logRelease(err error) {
	log := f.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	fields := logrus.Fields{"id": f.id, "backing": f.backing}
	if be, ok := err.(*BackendError); ok {
		fields["status"] = int(be.Status)
		fields["op"] = be.Op
		fields["location"] = fmt.Sprintf("%s:%d", be.File, be.Line)
	}
	log.WithFields(fields).WithError(err).Error("ncfile: releasing dataset")
}

// finalize is the last-resort cleanup for Files that were never closed.
func (f *File) finalize() {
	if f.IsNull() {
		return
	}
	if f.Log != nil {
		f.Log.WithField("id", f.id).Warn("ncfile: File garbage collected with an open session")
	}
	f.Release()
}
