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

package cdfengine_test

import (
	"io/ioutil"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncfile"
	"github.com/spatialmodel/ncfile/cdfengine"
	"github.com/spf13/afero"
)

func testEngine() *cdfengine.Engine {
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return cdfengine.New(cdfengine.Options{Fs: afero.NewMemMapFs(), Log: l})
}

// TestFileFormats opens a File in every mode and format. The classic
// formats work; the NetCDF-4 ones fail the way a library without HDF5
// support fails.
func TestFileFormats(t *testing.T) {
	for _, format := range []ncfile.Format{ncfile.Classic, ncfile.Classic64, ncfile.NC4, ncfile.NC4Classic} {
		for _, mode := range []ncfile.Mode{ncfile.NewFile, ncfile.Replace, ncfile.Write, ncfile.Read} {
			t.Run(mode.String()+"_"+format.String(), func(t *testing.T) {
				e := testEngine()
				if mode == ncfile.Read || mode == ncfile.Write {
					f, err := ncfile.OpenFormat(e, "a.nc", ncfile.Replace, ncfile.Classic)
					if err != nil {
						t.Fatal(err)
					}
					if err := f.Close(); err != nil {
						t.Fatal(err)
					}
				}
				f, err := ncfile.OpenFormat(e, "a.nc", mode, format)
				nc4 := format == ncfile.NC4 || format == ncfile.NC4Classic
				if nc4 && (mode == ncfile.NewFile || mode == ncfile.Replace) {
					if !ncfile.IsStatus(err, ncfile.ENOTBUILT) {
						t.Errorf("want ENOTBUILT, have %v", err)
					}
					return
				}
				if err != nil {
					t.Fatal(err)
				}
				defer f.Release()
				if f.Backing() != ncfile.DiskBacked {
					t.Errorf("backing: %v", f.Backing())
				}
				if err := f.Close(); err != nil {
					t.Error(err)
				}
				if !f.IsNull() {
					t.Error("handle not null after close")
				}
			})
		}
	}
}

func TestFileMemoryImage(t *testing.T) {
	e := testEngine()
	f, err := ncfile.OpenMemory(e, "mem.nc", ncfile.NewFile, ncfile.Classic, 1024, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Release()
	if st := e.DefDim(f.ID(), "x", 2); st != ncfile.NoErr {
		t.Fatal(st)
	}
	if st := e.DefVar(f.ID(), "v", []string{"x"}, []int16{}); st != ncfile.NoErr {
		t.Fatal(st)
	}
	if err := f.Enddef(); err != nil {
		t.Fatal(err)
	}
	if st := e.PutVar(f.ID(), "v", []int16{-3, 9}); st != ncfile.NoErr {
		t.Fatal(st)
	}
	img, err := f.CloseMemory()
	if err != nil {
		t.Fatal(err)
	}
	if !img.Transferred() {
		t.Errorf("image not transferred: %+v", img)
	}

	if err := f.OpenMemory("mem.nc", ncfile.Read, ncfile.Classic, img.Size, img.Data, false); err != nil {
		t.Fatal(err)
	}
	v, st := e.GetVar(f.ID(), "v")
	if st != ncfile.NoErr {
		t.Fatal(st)
	}
	if want := []int16{-3, 9}; !reflect.DeepEqual(v, want) {
		t.Errorf("%v != %v", v, want)
	}
	if err := f.Close(); err != ncfile.ErrMemoryBacked {
		t.Errorf("close of memory handle: %v", err)
	}
	f.Release()
	if !f.IsNull() {
		t.Error("handle not null after release")
	}
	if e.Sessions() != 0 {
		t.Errorf("%d sessions left open", e.Sessions())
	}
}

func TestFileLockedMemory(t *testing.T) {
	e := testEngine()
	buf := make([]byte, 512)
	f, err := ncfile.OpenMemory(e, "locked.nc", ncfile.Replace, ncfile.Classic64, len(buf), buf, true)
	if err != nil {
		t.Fatal(err)
	}
	if f.Ownership() != ncfile.CallerLocked {
		t.Errorf("ownership: %v", f.Ownership())
	}
	img, err := f.CloseMemory()
	if err != nil {
		t.Fatal(err)
	}
	if &img.Data[0] != &buf[0] || img.Size > len(buf) {
		t.Errorf("locked image moved or grew: size %d", img.Size)
	}
	if img.Transferred() {
		t.Error("locked image reported as transferred")
	}
	f2, err := ncfile.OpenMemory(e, "locked.nc", ncfile.Read, ncfile.Classic64, img.Size, buf, true)
	if err != nil {
		t.Fatal(err)
	}
	defer f2.Release()
	if format, err := f2.Format(); err != nil || format != ncfile.Classic64 {
		t.Errorf("format %v, err %v", format, err)
	}
}
