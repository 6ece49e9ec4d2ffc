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

// Mode flags accepted by Engine.Open and Engine.Create. They have the
// same values as the corresponding NC_* constants in netcdf.h.
const (
	NoWrite      = 0x0000
	ReadWrite    = 0x0001
	Clobber      = 0x0000
	NoClobber    = 0x0004
	ClassicModel = 0x0100
	Offset64Bit  = 0x0200
	NetCDF4      = 0x1000
	InMemory     = 0x8000
)

// MemioLocked marks a Memio buffer that the engine must never
// reallocate or free.
const MemioLocked = 0x01

// Format codes returned by Engine.InqFormat.
const (
	FormatClassic        = 1
	Format64BitOffset    = 2
	FormatNetCDF4        = 3
	FormatNetCDF4Classic = 4
)

// Memio describes an in-memory dataset image passed to or returned from
// an Engine.
type Memio struct {
	// Size is the number of meaningful bytes in Memory, or the initial
	// capacity when creating a new in-memory dataset.
	Size int

	// Memory holds the image. It may be nil when creating a dataset
	// with an engine-allocated buffer.
	Memory []byte

	// Flags is zero or MemioLocked.
	Flags int
}

// Engine is the storage engine that owns the bytes of a dataset. Every
// call returns a Status; a nonzero Status means the call failed and any
// other return value is meaningless.
//
// Dataset ids are only valid between the call that returned them and the
// matching Close or CloseMem. Implementations must be safe for use by
// multiple Files at once.
type Engine interface {
	Open(path string, flags int) (id int, st Status)
	Create(path string, flags int) (id int, st Status)
	OpenMem(path string, flags int, mem Memio) (id int, st Status)
	CreateMem(path string, flags int, mem Memio) (id int, st Status)
	Close(id int) Status
	CloseMem(id int) (Memio, Status)
	Sync(id int) Status
	Enddef(id int) Status
	InqFormat(id int) (format int, st Status)

	// The calls below are the part of the object model that lives in the
	// engine. File never calls them; they are used by code layered on
	// top of an open dataset id.

	DefDim(id int, name string, length int) Status
	// DefVar defines a variable whose type is given by the dynamic type
	// of zero: []uint8, string, []int16, []int32, []float32 or []float64.
	DefVar(id int, name string, dims []string, zero interface{}) Status
	// PutAtt sets attribute name of variable v, or a global attribute if
	// v is empty.
	PutAtt(id int, v, name string, value interface{}) Status
	PutVar(id int, name string, values interface{}) Status
	GetVar(id int, name string) (interface{}, Status)
}

// Freer is implemented by engines that recycle the buffers they hand out
// from CloseMem. Free must only be called by the owner of buf.
type Freer interface {
	Free(buf []byte)
}
