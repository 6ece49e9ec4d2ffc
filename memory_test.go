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

package ncfile_test

import (
	"testing"

	"github.com/spatialmodel/ncfile"
	"github.com/spatialmodel/ncfile/nctest"
)

func TestMemoryEveryMode(t *testing.T) {
	for _, mode := range modes {
		for _, format := range formats {
			t.Run(mode.String()+"_"+format.String(), func(t *testing.T) {
				e := new(nctest.Engine)
				var buf []byte
				size := 128
				if mode == ncfile.Read || mode == ncfile.Write {
					img := newImage(t, e)
					buf, size = img.Data, img.Size
				}
				f, err := ncfile.OpenMemory(e, "m.nc", mode, format, size, buf, false)
				if err != nil {
					t.Fatal(err)
				}
				if f.Backing() != ncfile.MemoryBacked || f.Ownership() != ncfile.BackendOwned {
					t.Errorf("backing %v ownership %v", f.Backing(), f.Ownership())
				}
				img, err := f.CloseMemory()
				if err != nil {
					t.Fatal(err)
				}
				if !img.Closed || len(img.Data) != img.Size || !img.Transferred() {
					t.Errorf("image %+v", img)
				}
				if !f.IsNull() {
					t.Error("handle not null after CloseMemory")
				}
			})
		}
	}
}

// newImage returns a closed in-memory image.
func newImage(t *testing.T, e *nctest.Engine) ncfile.MemoryImage {
	t.Helper()
	f, err := ncfile.OpenMemory(e, "seed.nc", ncfile.Replace, ncfile.Classic, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	img, err := f.CloseMemory()
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestMemoryReadIsReadOnly(t *testing.T) {
	e := new(nctest.Engine)
	img := newImage(t, e)
	f, err := ncfile.OpenMemory(e, "m.nc", ncfile.Read, ncfile.Classic, img.Size, img.Data, false)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Release()
	last := e.Calls[len(e.Calls)-1]
	if last.Op != nctest.OpOpenMem || last.Flags != ncfile.InMemory|ncfile.NoWrite {
		t.Errorf("call %s %#x", last.Op, last.Flags)
	}
	if err := f.Enddef(); !ncfile.IsStatus(err, ncfile.EPERM) {
		t.Errorf("want EPERM, have %v", err)
	}
}

func TestLockedMemoryKeepsBuffer(t *testing.T) {
	e := &nctest.Engine{GrowBy: 8}
	const n = 64
	buf := make([]byte, n)
	f, err := ncfile.OpenMemory(e, "m.nc", ncfile.NewFile, ncfile.Classic, n, buf, true)
	if err != nil {
		t.Fatal(err)
	}
	if f.Ownership() != ncfile.CallerLocked {
		t.Errorf("ownership %v", f.Ownership())
	}
	if st := e.DefVar(f.ID(), "v", nil, []float64{}); st != ncfile.NoErr {
		t.Fatal(st)
	}
	if err := f.Enddef(); err != nil {
		t.Fatal(err)
	}
	// Grow until the next write would not fit.
	var refused bool
	for i := 0; i < n; i++ {
		st := e.PutVar(f.ID(), "v", []float64{1})
		if st == ncfile.ENOMEM {
			refused = true
			break
		}
		if st != ncfile.NoErr {
			t.Fatal(st)
		}
	}
	if !refused {
		t.Error("growth past the locked buffer was not refused")
	}
	img, err := f.CloseMemory()
	if err != nil {
		t.Fatal(err)
	}
	if &img.Data[0] != &buf[0] {
		t.Error("locked buffer was reallocated")
	}
	if img.Size > n {
		t.Errorf("final size %d exceeds %d", img.Size, n)
	}
	if img.Ownership != ncfile.CallerLocked || img.Transferred() {
		t.Errorf("image %+v", img)
	}
}

func TestLockedMemoryTooSmall(t *testing.T) {
	e := new(nctest.Engine)
	buf := make([]byte, nctest.HeaderSize-1)
	_, err := ncfile.OpenMemory(e, "m.nc", ncfile.Replace, ncfile.Classic, len(buf), buf, true)
	if !ncfile.IsStatus(err, ncfile.ENOMEM) {
		t.Errorf("want ENOMEM, have %v", err)
	}
}

func TestUnlockedMemoryGrows(t *testing.T) {
	e := &nctest.Engine{GrowBy: 100}
	f, err := ncfile.OpenMemory(e, "m.nc", ncfile.Replace, ncfile.Classic64, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	e.DefVar(f.ID(), "v", nil, []int32{})
	f.Enddef()
	if st := e.PutVar(f.ID(), "v", []int32{1}); st != ncfile.NoErr {
		t.Fatal(st)
	}
	img, err := f.CloseMemory()
	if err != nil {
		t.Fatal(err)
	}
	if img.Size != nctest.HeaderSize+100 || !img.Transferred() {
		t.Errorf("image %+v", img)
	}
}

func TestOpenMemoryValidation(t *testing.T) {
	e := new(nctest.Engine)
	tests := []struct {
		name   string
		mode   ncfile.Mode
		size   int
		buf    []byte
		locked bool
	}{
		{"negative size", ncfile.Replace, -1, nil, false},
		{"size beyond buffer", ncfile.Replace, 10, make([]byte, 4), false},
		{"locked without buffer", ncfile.Replace, 10, nil, true},
		{"open without image", ncfile.Read, 10, nil, false},
	}
	for _, test := range tests {
		f := ncfile.New(e)
		if err := f.OpenMemory("m.nc", test.mode, ncfile.Classic, test.size, test.buf, test.locked); err == nil {
			t.Errorf("%s: no error", test.name)
		}
		if !f.IsNull() {
			t.Errorf("%s: handle not null", test.name)
		}
	}
	if len(e.Calls) != 0 {
		t.Errorf("engine called: %+v", e.Calls)
	}
}

func TestCloseOnMemoryHandle(t *testing.T) {
	e := new(nctest.Engine)
	f, err := ncfile.OpenMemory(e, "m.nc", ncfile.Replace, ncfile.Classic, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Release()
	id := f.ID()
	if err := f.Close(); err != ncfile.ErrMemoryBacked {
		t.Errorf("want ErrMemoryBacked, have %v", err)
	}
	if f.ID() != id || !e.Valid(id) {
		t.Error("Close changed a memory-backed handle")
	}
}

func TestCloseMemoryFailureKeepsState(t *testing.T) {
	e := new(nctest.Engine)
	f, err := ncfile.OpenMemory(e, "m.nc", ncfile.Replace, ncfile.Classic, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	id := f.ID()
	e.Fail = map[string]ncfile.Status{nctest.OpCloseMem: ncfile.EIO}
	if _, err := f.CloseMemory(); !ncfile.IsStatus(err, ncfile.EIO) {
		t.Errorf("want EIO, have %v", err)
	}
	if f.ID() != id || f.Backing() != ncfile.MemoryBacked {
		t.Error("failed CloseMemory changed the handle")
	}
	e.Fail = nil
	if _, err := f.CloseMemory(); err != nil {
		t.Errorf("retry: %v", err)
	}
}

func TestReleaseFreesTransferredImage(t *testing.T) {
	e := new(nctest.Engine)
	f, err := ncfile.OpenMemory(e, "m.nc", ncfile.Replace, ncfile.Classic, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	f.Release()
	if !f.IsNull() {
		t.Error("handle not null")
	}
	if len(e.Freed) != 1 || len(e.Freed[0]) != nctest.HeaderSize {
		t.Errorf("freed %d buffers", len(e.Freed))
	}
}

func TestReleaseKeepsLockedBuffer(t *testing.T) {
	e := new(nctest.Engine)
	buf := make([]byte, 64)
	f, err := ncfile.OpenMemory(e, "m.nc", ncfile.Replace, ncfile.Classic, len(buf), buf, true)
	if err != nil {
		t.Fatal(err)
	}
	f.Release()
	if len(e.Freed) != 0 {
		t.Error("locked caller buffer was freed")
	}
	if e.Count(nctest.OpCloseMem) != 1 {
		t.Error("memory session not closed")
	}
}

func TestReopenDiscardsImage(t *testing.T) {
	e := new(nctest.Engine)
	f, err := ncfile.OpenMemory(e, "m.nc", ncfile.Replace, ncfile.Classic, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	first := f.ID()
	if err := f.OpenFormat("a.nc", ncfile.Replace, ncfile.Classic); err != nil {
		t.Fatal(err)
	}
	defer f.Release()
	if e.Valid(first) {
		t.Error("memory session still open after reopen")
	}
	if len(e.Freed) != 1 {
		t.Errorf("%d buffers freed by reopen", len(e.Freed))
	}
	if f.Backing() != ncfile.DiskBacked {
		t.Errorf("backing %v", f.Backing())
	}
}
