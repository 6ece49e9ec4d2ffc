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

package cloud

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncfile"
	"github.com/spatialmodel/ncfile/cdfengine"
	"github.com/spf13/afero"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		url  string
		want location
		err  bool
	}{
		{url: "file:///tmp/data/a.nc", want: location{"file", "/tmp/data", "a.nc"}},
		{url: "file://data/a.nc", want: location{"file", "data", "a.nc"}},
		{url: "gs://bucket/dir/a.nc", want: location{"gs", "bucket", "dir/a.nc"}},
		{url: "s3://bucket/a.nc", want: location{"s3", "bucket", "a.nc"}},
		{url: "s3://bucket/", err: true},
		{url: "ftp://host/a.nc", err: true},
	}
	for _, test := range tests {
		loc, err := parseLocation(test.url)
		if (err != nil) != test.err {
			t.Errorf("%s: error %v", test.url, err)
			continue
		}
		if !test.err && loc != test.want {
			t.Errorf("%s: %+v != %+v", test.url, loc, test.want)
		}
	}
}

func TestURL(t *testing.T) {
	u, err := URL("gs://b/a.nc")
	if err != nil || u != "gs://b/a.nc" {
		t.Errorf("%s, %v", u, err)
	}
	u, err = URL("a.nc")
	if err != nil {
		t.Fatal(err)
	}
	loc, err := parseLocation(u)
	if err != nil {
		t.Fatal(err)
	}
	if loc.key != "a.nc" || !filepath.IsAbs(loc.bucket) {
		t.Errorf("%s parsed as %+v", u, loc)
	}
}

func testEngine() *cdfengine.Engine {
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return cdfengine.New(cdfengine.Options{Fs: afero.NewMemMapFs(), Log: l})
}

func TestImageRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "ncfile_cloud")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	url := "file://" + filepath.ToSlash(filepath.Join(dir, "a.nc"))
	ctx := context.Background()
	e := testEngine()

	f, err := ncfile.OpenMemory(e, "a.nc", ncfile.NewFile, ncfile.Classic, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if st := e.DefDim(f.ID(), "x", 3); st != ncfile.NoErr {
		t.Fatal(st)
	}
	if st := e.DefVar(f.ID(), "v", []string{"x"}, []float32{}); st != ncfile.NoErr {
		t.Fatal(st)
	}
	if err := f.Enddef(); err != nil {
		t.Fatal(err)
	}
	want := []float32{1, 2.5, -4}
	if st := e.PutVar(f.ID(), "v", want); st != ncfile.NoErr {
		t.Fatal(st)
	}
	if err := SaveImage(ctx, f, url); err != nil {
		t.Fatal(err)
	}
	if !f.IsNull() || e.Sessions() != 0 {
		t.Errorf("saved dataset still open: %d sessions", e.Sessions())
	}

	g, err := OpenImage(ctx, e, url, ncfile.Read, ncfile.Classic)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Release()
	if g.Ownership() != ncfile.BackendOwned {
		t.Errorf("ownership %v", g.Ownership())
	}
	have, st := e.GetVar(g.ID(), "v")
	if st != ncfile.NoErr {
		t.Fatal(st)
	}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("%v != %v", have, want)
	}
}

func TestReadImageMissing(t *testing.T) {
	dir, err := ioutil.TempDir("", "ncfile_cloud")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	url := "file://" + filepath.ToSlash(filepath.Join(dir, "missing.nc"))
	if _, err := ReadImage(context.Background(), url); err == nil {
		t.Error("no error reading a missing image")
	}
}

func TestOpenImageMode(t *testing.T) {
	_, err := OpenImage(context.Background(), testEngine(), "file:///tmp/a.nc", ncfile.Replace, ncfile.Classic)
	if err == nil {
		t.Error("Replace accepted")
	}
}

func TestSaveImageDisk(t *testing.T) {
	e := testEngine()
	f, err := ncfile.OpenFormat(e, "a.nc", ncfile.Replace, ncfile.Classic)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Release()
	if err := SaveImage(context.Background(), f, "file:///tmp/a.nc"); err == nil {
		t.Error("disk-backed dataset saved")
	}
	if f.Backing() != ncfile.DiskBacked {
		t.Error("failed save changed the handle")
	}
}
