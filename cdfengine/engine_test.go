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

import (
	"io/ioutil"
	"reflect"
	"syscall"
	"testing"

	"github.com/kr/pretty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncfile"
	"github.com/spf13/afero"
)

func newTestEngine(o Options) *Engine {
	if o.Fs == nil {
		o.Fs = afero.NewMemMapFs()
	}
	if o.Log == nil {
		l := logrus.New()
		l.SetOutput(ioutil.Discard)
		o.Log = l
	}
	return New(o)
}

func mustOK(t *testing.T, what string, st ncfile.Status) {
	t.Helper()
	if st != ncfile.NoErr {
		t.Fatalf("%s: %v", what, st)
	}
}

// define gives the dataset open as id a fixed variable "v" of three
// doubles and a record variable "r" of pairs of ints.
func define(t *testing.T, e *Engine, id int) {
	t.Helper()
	mustOK(t, "def_dim x", e.DefDim(id, "x", 3))
	mustOK(t, "def_dim y", e.DefDim(id, "y", 2))
	mustOK(t, "def_dim time", e.DefDim(id, "time", 0))
	mustOK(t, "def_var v", e.DefVar(id, "v", []string{"x"}, []float64{}))
	mustOK(t, "def_var r", e.DefVar(id, "r", []string{"time", "y"}, []int32{}))
	mustOK(t, "att title", e.PutAtt(id, "", "title", "test dataset"))
	mustOK(t, "att units", e.PutAtt(id, "v", "units", "m"))
}

func TestCreateAndReopen(t *testing.T) {
	for _, flags := range []int{ncfile.Clobber, ncfile.Offset64Bit} {
		e := newTestEngine(Options{})
		id, st := e.Create("a.nc", flags)
		mustOK(t, "create", st)
		if id < firstID {
			t.Errorf("id %d is below %d", id, firstID)
		}
		define(t, e, id)
		mustOK(t, "enddef", e.Enddef(id))
		mustOK(t, "put v", e.PutVar(id, "v", []float64{1, 2, 3}))
		mustOK(t, "put r", e.PutVar(id, "r", []int32{1, 2, 3, 4, 5, 6}))
		mustOK(t, "sync", e.Sync(id))
		mustOK(t, "close", e.Close(id))

		id, st = e.Open("a.nc", ncfile.NoWrite)
		mustOK(t, "open", st)
		v, st := e.GetVar(id, "v")
		mustOK(t, "get v", st)
		if want := []float64{1, 2, 3}; !reflect.DeepEqual(v, want) {
			t.Errorf("v: %v != %v", v, want)
		}
		r, st := e.GetVar(id, "r")
		mustOK(t, "get r", st)
		if want := []int32{1, 2, 3, 4, 5, 6}; !reflect.DeepEqual(r, want) {
			t.Errorf("r: %v != %v", r, want)
		}
		sum, st := e.Describe(id)
		mustOK(t, "describe", st)
		want := Summary{
			Format:  ncfile.FormatClassic, // small layouts are always written as CDF-1
			Records: 3,
			Dims:    []Dim{{"x", 3}, {"y", 2}, {"time", 0}},
			Vars: []Var{
				{Name: "v", Type: "double", Dims: []string{"x"}, Attributes: map[string]interface{}{"units": "m"}},
				{Name: "r", Type: "int", Dims: []string{"time", "y"}},
			},
			Attributes: map[string]interface{}{"title": "test dataset"},
		}
		if !reflect.DeepEqual(sum, want) {
			t.Errorf("flags %#x: summary differs: %v", flags, pretty.Diff(sum, want))
		}
		mustOK(t, "close", e.Close(id))
		if e.Sessions() != 0 {
			t.Errorf("%d sessions left open", e.Sessions())
		}
	}
}

func TestNoVariables64BitOffset(t *testing.T) {
	e := newTestEngine(Options{})
	id, st := e.Create("dims.nc", ncfile.Offset64Bit)
	mustOK(t, "create", st)
	mustOK(t, "def_dim", e.DefDim(id, "x", 4))
	if f, _ := e.InqFormat(id); f != ncfile.Format64BitOffset {
		t.Errorf("format in define mode: %d", f)
	}
	mustOK(t, "close", e.Close(id)) // implicit enddef

	id, st = e.Open("dims.nc", ncfile.NoWrite)
	mustOK(t, "open", st)
	f, st := e.InqFormat(id)
	mustOK(t, "inq_format", st)
	if f != ncfile.Format64BitOffset {
		t.Errorf("format after reopen: %d", f)
	}
	e.Close(id)
}

func TestCreateStatus(t *testing.T) {
	e := newTestEngine(Options{})
	id, st := e.Create("a.nc", ncfile.NoClobber)
	mustOK(t, "create", st)
	mustOK(t, "close", e.Close(id))

	tests := []struct {
		name  string
		path  string
		flags int
		want  ncfile.Status
	}{
		{"noclobber existing", "a.nc", ncfile.NoClobber, ncfile.EEXIST},
		{"clobber existing", "a.nc", ncfile.Clobber, ncfile.NoErr},
		{"netcdf4", "b.nc", ncfile.NetCDF4, ncfile.ENOTBUILT},
		{"netcdf4 classic", "b.nc", ncfile.NetCDF4 | ncfile.ClassicModel, ncfile.ENOTBUILT},
		{"netcdf4 64-bit", "b.nc", ncfile.NetCDF4 | ncfile.Offset64Bit, ncfile.EINVAL},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			id, st := e.Create(test.path, test.flags)
			if st != test.want {
				t.Errorf("%v != %v", st, test.want)
			}
			if st == ncfile.NoErr {
				e.Close(id)
			} else if id != -1 {
				t.Errorf("failed create returned id %d", id)
			}
		})
	}
}

func TestOpenStatus(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "junk.nc", []byte("not a netcdf file"), 0644)
	afero.WriteFile(fs, "hdf5.nc", append(hdf5Signature, make([]byte, 32)...), 0644)
	afero.WriteFile(fs, "empty.nc", nil, 0644)
	e := newTestEngine(Options{Fs: fs})

	tests := []struct {
		path string
		want ncfile.Status
	}{
		{"missing.nc", ncfile.Status(syscall.ENOENT)},
		{"junk.nc", ncfile.ENOTNC},
		{"empty.nc", ncfile.ENOTNC},
		{"hdf5.nc", ncfile.ENOTBUILT},
	}
	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			id, st := e.Open(test.path, ncfile.NoWrite)
			if st != test.want {
				t.Errorf("%v != %v", st, test.want)
			}
			if id != -1 {
				t.Errorf("failed open returned id %d", id)
			}
		})
	}
	if e.Sessions() != 0 {
		t.Errorf("%d sessions left open", e.Sessions())
	}
}

func TestReadOnly(t *testing.T) {
	e := newTestEngine(Options{})
	id, _ := e.Create("a.nc", ncfile.Clobber)
	define(t, e, id)
	mustOK(t, "close", e.Close(id))

	id, st := e.Open("a.nc", ncfile.NoWrite)
	mustOK(t, "open", st)
	defer e.Close(id)
	if st := e.PutAtt(id, "", "history", "x"); st != ncfile.EPERM {
		t.Errorf("put_att: %v", st)
	}
	if st := e.PutVar(id, "v", []float64{1, 2, 3}); st != ncfile.EPERM {
		t.Errorf("put_var: %v", st)
	}
	if st := e.Enddef(id); st != ncfile.EPERM {
		t.Errorf("enddef: %v", st)
	}
	if st := e.DefDim(id, "z", 1); st != ncfile.EPERM {
		t.Errorf("def_dim: %v", st)
	}
}

func TestDefineStatus(t *testing.T) {
	e := newTestEngine(Options{})
	id, _ := e.Create("a.nc", ncfile.Clobber)
	defer e.Close(id)
	define(t, e, id)

	tests := []struct {
		name string
		st   ncfile.Status
		want ncfile.Status
	}{
		{"dim in use", e.DefDim(id, "x", 1), ncfile.ENAMEINUSE},
		{"second unlimited", e.DefDim(id, "t2", 0), ncfile.EUNLIMIT},
		{"negative length", e.DefDim(id, "n", -1), ncfile.EDIMSIZE},
		{"unnamed dim", e.DefDim(id, "", 1), ncfile.EINVAL},
		{"var in use", e.DefVar(id, "v", []string{"x"}, []float64{}), ncfile.ENAMEINUSE},
		{"unknown dim", e.DefVar(id, "w", []string{"z"}, []float64{}), ncfile.EBADDIM},
		{"unlimited not first", e.DefVar(id, "w", []string{"x", "time"}, []float64{}), ncfile.EUNLIMPOS},
		{"bad type", e.DefVar(id, "w", []string{"x"}, []int{}), ncfile.EBADTYPE},
		{"att bad type", e.PutAtt(id, "", "a", 3), ncfile.EBADTYPE},
		{"att unknown var", e.PutAtt(id, "w", "a", "b"), ncfile.ENOTVAR},
		{"att replaced", e.PutAtt(id, "", "title", "again"), ncfile.NoErr},
		{"put in define mode", e.PutVar(id, "v", []float64{1, 2, 3}), ncfile.EINDEFINE},
		{"sync in define mode", e.Sync(id), ncfile.EINDEFINE},
	}
	for _, test := range tests {
		if test.st != test.want {
			t.Errorf("%s: %v != %v", test.name, test.st, test.want)
		}
	}

	mustOK(t, "enddef", e.Enddef(id))
	tests = []struct {
		name string
		st   ncfile.Status
		want ncfile.Status
	}{
		{"enddef twice", e.Enddef(id), ncfile.ENOTINDEFINE},
		{"def_dim in data mode", e.DefDim(id, "z", 1), ncfile.ENOTINDEFINE},
		{"unknown var", e.PutVar(id, "w", []float64{1}), ncfile.ENOTVAR},
		{"wrong type", e.PutVar(id, "v", []float32{1, 2, 3}), ncfile.EBADTYPE},
		{"wrong length", e.PutVar(id, "v", []float64{1, 2}), ncfile.EEDGE},
		{"partial record", e.PutVar(id, "r", []int32{1, 2, 3}), ncfile.EEDGE},
	}
	for _, test := range tests {
		if test.st != test.want {
			t.Errorf("%s: %v != %v", test.name, test.st, test.want)
		}
	}
}

func TestStaleID(t *testing.T) {
	e := newTestEngine(Options{})
	id, _ := e.Create("a.nc", ncfile.Clobber)
	mustOK(t, "close", e.Close(id))
	if st := e.Close(id); st != ncfile.EBADID {
		t.Errorf("second close: %v", st)
	}
	if st := e.Sync(id); st != ncfile.EBADID {
		t.Errorf("sync: %v", st)
	}
	id2, _ := e.Create("b.nc", ncfile.Clobber)
	defer e.Close(id2)
	if id2 == id {
		t.Errorf("id %d reused", id)
	}
}

func TestMaxSessions(t *testing.T) {
	e := newTestEngine(Options{MaxSessions: 2})
	var ids []int
	for _, p := range []string{"a.nc", "b.nc"} {
		id, st := e.Create(p, ncfile.Clobber)
		mustOK(t, "create "+p, st)
		ids = append(ids, id)
	}
	if _, st := e.Create("c.nc", ncfile.Clobber); st != ncfile.ENFILE {
		t.Errorf("third create: %v", st)
	}
	if _, st := e.CreateMem("d.nc", ncfile.InMemory, ncfile.Memio{}); st != ncfile.ENFILE {
		t.Errorf("third create_mem: %v", st)
	}
	for _, id := range ids {
		e.Close(id)
	}
	id, st := e.Create("c.nc", ncfile.Clobber)
	mustOK(t, "create after close", st)
	e.Close(id)
}

func TestCloseMemDisk(t *testing.T) {
	e := newTestEngine(Options{})
	id, _ := e.Create("a.nc", ncfile.Clobber)
	mustOK(t, "enddef", e.Enddef(id))
	mem, st := e.CloseMem(id)
	if st != ncfile.EDISKLESS {
		t.Errorf("close_mem: %v", st)
	}
	if !reflect.DeepEqual(mem, ncfile.Memio{}) {
		t.Errorf("close_mem returned %+v", mem)
	}
	mustOK(t, "sync after failed close_mem", e.Sync(id))
	mustOK(t, "close", e.Close(id))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newTestEngine(Options{Registerer: reg})
	id, _ := e.Create("a.nc", ncfile.Clobber)
	if v := testutil.ToFloat64(e.metrics.sessions.WithLabelValues("disk")); v != 1 {
		t.Errorf("open disk sessions: %g", v)
	}
	e.Enddef(id)
	e.Enddef(id)
	e.Close(id)
	if v := testutil.ToFloat64(e.metrics.sessions.WithLabelValues("disk")); v != 0 {
		t.Errorf("open disk sessions after close: %g", v)
	}
	for _, test := range []struct {
		op, status string
		want       float64
	}{
		{"create", "0", 1},
		{"enddef", "0", 1},
		{"enddef", "-38", 1},
		{"close", "0", 1},
	} {
		if v := testutil.ToFloat64(e.metrics.calls.WithLabelValues(test.op, test.status)); v != test.want {
			t.Errorf("calls{%s,%s} = %g, want %g", test.op, test.status, v, test.want)
		}
	}
}
