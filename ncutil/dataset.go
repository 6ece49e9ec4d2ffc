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

package ncutil

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spatialmodel/ncfile"
	"github.com/spatialmodel/ncfile/cdfengine"
	"github.com/spatialmodel/ncfile/cloud"
	"github.com/spatialmodel/ncfile/internal/hash"
)

// CreateOptions control CreateDataset.
type CreateOptions struct {
	Mode   ncfile.Mode // Replace or NewFile
	Format ncfile.Format

	// Memory builds the dataset in memory and writes it out when it is
	// closed. Datasets named by a blob URL are always built in memory.
	Memory bool

	// Locked limits an in-memory dataset to a caller buffer of
	// InitialSize bytes.
	Locked      bool
	InitialSize int

	Template *Template // may be nil
}

// CreateDataset creates the dataset path with e according to o.
func CreateDataset(ctx context.Context, e ncfile.Engine, path string, o CreateOptions) error {
	if !o.Memory && !cloud.IsURL(path) {
		f, err := ncfile.OpenFormat(e, path, o.Mode, o.Format)
		if err != nil {
			return err
		}
		defer f.Release()
		if err := build(f, o.Template); err != nil {
			return err
		}
		return f.Close()
	}

	url, err := cloud.URL(path)
	if err != nil {
		return err
	}
	if o.Mode == ncfile.NewFile {
		exists, err := cloud.Exists(ctx, url)
		if err != nil {
			return err
		}
		if exists {
			return ncfile.Check(ncfile.EEXIST, "nc_create_mem", path)
		}
	}
	var buf []byte
	if o.Locked {
		buf = make([]byte, o.InitialSize)
	}
	f, err := ncfile.OpenMemory(e, path, o.Mode, o.Format, o.InitialSize, buf, o.Locked)
	if err != nil {
		return err
	}
	defer f.Release()
	if err := build(f, o.Template); err != nil {
		return err
	}
	return cloud.SaveImage(ctx, f, url)
}

// build lays out a new dataset from t and writes its data.
func build(f *ncfile.File, t *Template) error {
	if t == nil {
		return f.Enddef()
	}
	if err := t.Define(f); err != nil {
		return err
	}
	if err := f.Enddef(); err != nil {
		return err
	}
	return t.Fill(f)
}

// open opens path, a local path or a blob URL, read-only.
func open(ctx context.Context, e ncfile.Engine, path string, format ncfile.Format) (*ncfile.File, error) {
	if cloud.IsURL(path) {
		return cloud.OpenImage(ctx, e, path, ncfile.Read, format)
	}
	return ncfile.OpenFormat(e, path, ncfile.Read, format)
}

// Describe returns a description of the dataset at path.
func Describe(ctx context.Context, e *cdfengine.Engine, path string, format ncfile.Format) (cdfengine.Summary, error) {
	f, err := open(ctx, e, path, format)
	if err != nil {
		return cdfengine.Summary{}, err
	}
	defer f.Release()
	sum, st := e.Describe(f.ID())
	if err := ncfile.Check(st, "describe", path); err != nil {
		return cdfengine.Summary{}, err
	}
	return sum, nil
}

// Copy loads the dataset src into memory and writes it to dst.
func Copy(ctx context.Context, e ncfile.Engine, src, dst string, format ncfile.Format) error {
	srcURL, err := cloud.URL(src)
	if err != nil {
		return err
	}
	dstURL, err := cloud.URL(dst)
	if err != nil {
		return err
	}
	f, err := cloud.OpenImage(ctx, e, srcURL, ncfile.Read, format)
	if err != nil {
		return err
	}
	defer f.Release()
	return cloud.SaveImage(ctx, f, dstURL)
}

var formatNames = map[int]ncfile.Format{
	ncfile.FormatClassic:        ncfile.Classic,
	ncfile.Format64BitOffset:    ncfile.Classic64,
	ncfile.FormatNetCDF4:        ncfile.NC4,
	ncfile.FormatNetCDF4Classic: ncfile.NC4Classic,
}

// PrintSummary writes sum to w in a CDL-like layout, followed by its
// fingerprint.
func PrintSummary(w io.Writer, name string, sum cdfengine.Summary) {
	fmt.Fprintf(w, "netcdf %s { // format %v\n", name, formatNames[sum.Format])
	if len(sum.Dims) > 0 {
		fmt.Fprintln(w, "dimensions:")
	}
	for _, d := range sum.Dims {
		if d.Length == 0 {
			fmt.Fprintf(w, "\t%s = UNLIMITED ; // (%d currently)\n", d.Name, sum.Records)
		} else {
			fmt.Fprintf(w, "\t%s = %d ;\n", d.Name, d.Length)
		}
	}
	if len(sum.Vars) > 0 {
		fmt.Fprintln(w, "variables:")
	}
	for _, v := range sum.Vars {
		if len(v.Dims) == 0 {
			fmt.Fprintf(w, "\t%s %s ;\n", v.Type, v.Name)
		} else {
			fmt.Fprintf(w, "\t%s %s(%s) ;\n", v.Type, v.Name, strings.Join(v.Dims, ", "))
		}
		printAttributes(w, v.Name, v.Attributes)
	}
	if len(sum.Attributes) > 0 {
		fmt.Fprintln(w, "\n// global attributes:")
		printAttributes(w, "", sum.Attributes)
	}
	fmt.Fprintln(w, "}")
	fmt.Fprintf(w, "fingerprint: %s\n", hash.Hash(sum))
}

func printAttributes(w io.Writer, v string, atts map[string]interface{}) {
	names := make([]string, 0, len(atts))
	for name := range atts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := atts[name]
		if s, ok := value.(string); ok {
			fmt.Fprintf(w, "\t\t%s:%s = %q ;\n", v, name, s)
			continue
		}
		fmt.Fprintf(w, "\t\t%s:%s = %s ;\n", v, name, strings.Trim(fmt.Sprint(value), "[]"))
	}
}
