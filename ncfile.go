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

// Package ncfile manages the lifecycle of a session into a netCDF
// dataset. A File turns a path or a memory buffer into an open dataset id
// obtained from an Engine and makes sure the session is released again.
//
// A typical use is
//
//	f, err := ncfile.Open(engine, "/path/to/file.nc", ncfile.Read)
//	if err != nil {
//		return err
//	}
//	defer f.Release()
//	// ... use f.ID() ...
//	return f.Close()
//
// In-memory datasets are opened with OpenMemory and closed with
// CloseMemory, whose MemoryImage result says who owns the final buffer.
package ncfile

import "fmt"

// Version gives the version number.
const Version = "1.0.0"

// Mode specifies how a dataset is opened.
type Mode int

const (
	// Read opens an existing dataset read-only.
	Read Mode = iota
	// Write opens an existing dataset for writing.
	Write
	// Replace creates a new dataset, overwriting any existing one.
	Replace
	// NewFile creates a new dataset and fails if one already exists.
	NewFile
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	case Replace:
		return "replace"
	case NewFile:
		return "newfile"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode returns the Mode named by s.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{Read, Write, Replace, NewFile} {
		if s == m.String() {
			return m, nil
		}
	}
	return 0, fmt.Errorf("ncfile: invalid mode %q; must be one of read, write, replace or newfile", s)
}

// Format is the on-disk format of a dataset.
type Format int

const (
	// Classic is the classic format with the classic data model.
	Classic Format = iota
	// Classic64 is the 64-bit offset format with the classic data model.
	Classic64
	// NC4 is the netCDF-4/HDF5 format with the enhanced data model.
	NC4
	// NC4Classic is the netCDF-4/HDF5 format restricted to the classic
	// data model.
	NC4Classic
)

func (f Format) String() string {
	switch f {
	case Classic:
		return "classic"
	case Classic64:
		return "classic64"
	case NC4:
		return "nc4"
	case NC4Classic:
		return "nc4classic"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat returns the Format named by s.
func ParseFormat(s string) (Format, error) {
	for _, f := range []Format{Classic, Classic64, NC4, NC4Classic} {
		if s == f.String() {
			return f, nil
		}
	}
	return 0, fmt.Errorf("ncfile: invalid format %q; must be one of classic, classic64, nc4 or nc4classic", s)
}

// DefaultFormat is the format used by Open when creating a dataset.
const DefaultFormat = NC4

// engineCall identifies which Engine entry point a Mode maps to.
type engineCall int

const (
	callOpen engineCall = iota
	callCreate
)

// An openSpec is the engine call and flag bits for one (mode, format)
// pair.
type openSpec struct {
	call  engineCall
	flags int
}

type modeFormat struct {
	mode   Mode
	format Format
}

// diskTable maps every (mode, format) pair to the engine call that opens
// a disk-backed dataset.
var diskTable = map[modeFormat]openSpec{
	{Read, Classic}:       {callOpen, NoWrite},
	{Read, Classic64}:     {callOpen, NoWrite | Offset64Bit},
	{Read, NC4}:           {callOpen, NoWrite | NetCDF4},
	{Read, NC4Classic}:    {callOpen, NoWrite | NetCDF4 | ClassicModel},
	{Write, Classic}:      {callOpen, ReadWrite},
	{Write, Classic64}:    {callOpen, ReadWrite | Offset64Bit},
	{Write, NC4}:          {callOpen, ReadWrite | NetCDF4},
	{Write, NC4Classic}:   {callOpen, ReadWrite | NetCDF4 | ClassicModel},
	{Replace, Classic}:    {callCreate, Clobber},
	{Replace, Classic64}:  {callCreate, Clobber | Offset64Bit},
	{Replace, NC4}:        {callCreate, Clobber | NetCDF4},
	{Replace, NC4Classic}: {callCreate, Clobber | NetCDF4 | ClassicModel},
	{NewFile, Classic}:    {callCreate, NoClobber},
	{NewFile, Classic64}:  {callCreate, NoClobber | Offset64Bit},
	{NewFile, NC4}:        {callCreate, NoClobber | NetCDF4},
	{NewFile, NC4Classic}: {callCreate, NoClobber | NetCDF4 | ClassicModel},
}

// modeTable is used by Open, which passes no format bits when opening an
// existing dataset and creates in DefaultFormat.
var modeTable = map[Mode]openSpec{
	Read:    {callOpen, NoWrite},
	Write:   {callOpen, ReadWrite},
	Replace: diskTable[modeFormat{Replace, DefaultFormat}],
	NewFile: diskTable[modeFormat{NewFile, DefaultFormat}],
}

// memoryTable maps every (mode, format) pair to the engine call that
// opens a memory-backed dataset. Read gives a read-only view of the
// image.
var memoryTable = map[modeFormat]openSpec{
	{Read, Classic}:       {callOpen, InMemory | NoWrite},
	{Read, Classic64}:     {callOpen, InMemory | NoWrite | Offset64Bit},
	{Read, NC4}:           {callOpen, InMemory | NoWrite | NetCDF4},
	{Read, NC4Classic}:    {callOpen, InMemory | NoWrite | NetCDF4 | ClassicModel},
	{Write, Classic}:      {callOpen, InMemory | ReadWrite},
	{Write, Classic64}:    {callOpen, InMemory | ReadWrite | Offset64Bit},
	{Write, NC4}:          {callOpen, InMemory | ReadWrite | NetCDF4},
	{Write, NC4Classic}:   {callOpen, InMemory | ReadWrite | NetCDF4 | ClassicModel},
	{Replace, Classic}:    {callCreate, InMemory | ReadWrite},
	{Replace, Classic64}:  {callCreate, InMemory | ReadWrite | Offset64Bit},
	{Replace, NC4}:        {callCreate, InMemory | ReadWrite | NetCDF4},
	{Replace, NC4Classic}: {callCreate, InMemory | ReadWrite | NetCDF4 | ClassicModel},
	{NewFile, Classic}:    {callCreate, InMemory | ReadWrite},
	{NewFile, Classic64}:  {callCreate, InMemory | ReadWrite | Offset64Bit},
	{NewFile, NC4}:        {callCreate, InMemory | ReadWrite | NetCDF4},
	{NewFile, NC4Classic}: {callCreate, InMemory | ReadWrite | NetCDF4 | ClassicModel},
}

func lookup(table map[modeFormat]openSpec, m Mode, f Format) (openSpec, error) {
	spec, ok := table[modeFormat{m, f}]
	if !ok {
		return openSpec{}, fmt.Errorf("ncfile: unsupported mode %v with format %v", m, f)
	}
	return spec, nil
}
