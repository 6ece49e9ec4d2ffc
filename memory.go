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

import "fmt"

// Ownership says who is responsible for the buffer behind an in-memory
// dataset.
type Ownership int

const (
	// NoOwnership means there is no buffer.
	NoOwnership Ownership = iota

	// CallerLocked buffers belong to the caller for the whole life of the
	// session. The engine never reallocates or frees them, so the dataset
	// cannot grow past the buffer's size.
	CallerLocked

	// BackendOwned buffers belong to the engine while the session is
	// open. The engine may grow or reallocate them; the final buffer
	// becomes the caller's when CloseMemory succeeds.
	BackendOwned
)

func (o Ownership) String() string {
	switch o {
	case NoOwnership:
		return "none"
	case CallerLocked:
		return "caller-locked"
	case BackendOwned:
		return "backend-owned"
	}
	return fmt.Sprintf("Ownership(%d)", int(o))
}

// MemoryImage is the result of closing an in-memory dataset.
type MemoryImage struct {
	// Closed is false if the File had no in-memory session to close. In
	// that case the other fields are zero and nothing happened.
	Closed bool

	// Data is the final dataset image, len(Data) == Size.
	Data []byte
	Size int

	// Ownership is CallerLocked if Data is the caller's own locked buffer
	// and BackendOwned if ownership of Data has just moved from the
	// engine to the caller.
	Ownership Ownership
}

// Transferred reports whether the caller became the owner of Data when
// the image was returned.
func (m MemoryImage) Transferred() bool {
	return m.Closed && m.Ownership == BackendOwned
}

// OpenMemory opens or creates an in-memory dataset; see File.OpenMemory.
func OpenMemory(e Engine, path string, mode Mode, format Format, size int, buf []byte, locked bool) (*File, error) {
	f := New(e)
	if err := f.OpenMemory(path, mode, format, size, buf, locked); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenMemory closes any open session and opens an in-memory dataset.
// path names the dataset but is not accessed.
//
// For Read and Write, buf[:size] is an existing dataset image; Read gives
// a read-only view. For Replace and NewFile, a new dataset is created
// with an initial capacity of size bytes, in buf if it is not nil.
//
// If locked is true, buf stays the caller's throughout and the dataset
// may never outgrow it. If locked is false, buf is handed to the engine,
// which may reallocate it; the caller must not touch buf again and
// receives the final buffer from CloseMemory.
func (f *File) OpenMemory(path string, mode Mode, format Format, size int, buf []byte, locked bool) error {
	spec, err := lookup(memoryTable, mode, format)
	if err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("ncfile: negative memory size %d", size)
	}
	if buf != nil && size > cap(buf) {
		return fmt.Errorf("ncfile: memory size %d exceeds buffer capacity %d", size, cap(buf))
	}
	if locked && buf == nil {
		return fmt.Errorf("ncfile: a locked in-memory dataset needs a caller buffer")
	}
	if spec.call == callOpen && buf == nil {
		return fmt.Errorf("ncfile: opening an in-memory dataset needs a buffer holding the image")
	}
	if err := f.closeCurrent(); err != nil {
		return err
	}

	mem := Memio{Size: size, Memory: buf}
	ownership := BackendOwned
	if locked {
		mem.Flags = MemioLocked
		ownership = CallerLocked
	}

	var id int
	var st Status
	var op string
	switch spec.call {
	case callOpen:
		op = "nc_open_memio"
		id, st = f.engine.OpenMem(path, spec.flags, mem)
	case callCreate:
		op = "nc_create_mem"
		id, st = f.engine.CreateMem(path, spec.flags, mem)
	}
	if err := check(st, op, path); err != nil {
		return err
	}
	f.id = id
	f.backing = MemoryBacked
	f.mem = buf
	f.memSize = size
	f.ownership = ownership
	return nil
}

// Ownership returns the ownership mode of an in-memory session, or
// NoOwnership if f is not memory-backed.
func (f *File) Ownership() Ownership { return f.ownership }

// CloseMemory closes an in-memory session and returns its final image.
//
// If f has no session or a disk-backed one, CloseMemory does nothing and
// returns a MemoryImage with Closed == false. A nil error with
// Closed == true means f now has no session and, for BackendOwned
// datasets, the caller owns Data and is responsible for it from now on.
func (f *File) CloseMemory() (MemoryImage, error) {
	if f.backing != MemoryBacked {
		return MemoryImage{}, nil
	}
	mem, st := f.engine.CloseMem(f.id)
	if err := check(st, "nc_close_memio", ""); err != nil {
		return MemoryImage{}, err
	}
	img := MemoryImage{
		Closed:    true,
		Data:      mem.Memory[:mem.Size],
		Size:      mem.Size,
		Ownership: f.ownership,
	}
	f.reset()
	return img, nil
}

// freeImage disposes of an image nobody else will receive. Only images
// whose ownership moved to us are handed back, so a locked caller buffer
// is never freed.
func (f *File) freeImage(img MemoryImage) {
	if !img.Transferred() {
		return
	}
	if fr, ok := f.engine.(Freer); ok {
		fr.Free(img.Data)
	}
}
