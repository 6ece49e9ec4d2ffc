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
	"bytes"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/ncfile"
)

// A schema collects the definitions made in define mode. cdf headers are
// immutable once written, so nothing reaches the file until Enddef.
type schema struct {
	format int
	dims   []dimDef
	atts   []attDef // global attributes
	vars   []*varDef
}

type dimDef struct {
	name   string
	length int
}

type attDef struct {
	name  string
	value interface{}
}

type varDef struct {
	name string
	dims []string
	zero interface{}
	atts []attDef
}

func (s *schema) dim(name string) (dimDef, bool) {
	for _, d := range s.dims {
		if d.name == name {
			return d, true
		}
	}
	return dimDef{}, false
}

func (s *schema) variable(name string) *varDef {
	for _, v := range s.vars {
		if v.name == name {
			return v
		}
	}
	return nil
}

// validType reports whether v has one of the dynamic types cdf can store.
func validType(v interface{}) bool {
	switch v.(type) {
	case []uint8, string, []int16, []int32, []float32, []float64:
		return true
	}
	return false
}

func (s *schema) defDim(name string, length int) ncfile.Status {
	switch {
	case name == "":
		return ncfile.EINVAL
	case length < 0:
		return ncfile.EDIMSIZE
	}
	if _, ok := s.dim(name); ok {
		return ncfile.ENAMEINUSE
	}
	if length == 0 {
		for _, d := range s.dims {
			if d.length == 0 {
				return ncfile.EUNLIMIT
			}
		}
	}
	s.dims = append(s.dims, dimDef{name: name, length: length})
	return ncfile.NoErr
}

func (s *schema) defVar(name string, dims []string, zero interface{}) ncfile.Status {
	if name == "" {
		return ncfile.EINVAL
	}
	if s.variable(name) != nil {
		return ncfile.ENAMEINUSE
	}
	if !validType(zero) {
		return ncfile.EBADTYPE
	}
	for i, dn := range dims {
		d, ok := s.dim(dn)
		if !ok {
			return ncfile.EBADDIM
		}
		if d.length == 0 && i != 0 {
			return ncfile.EUNLIMPOS
		}
	}
	s.vars = append(s.vars, &varDef{name: name, dims: append([]string(nil), dims...), zero: zero})
	return ncfile.NoErr
}

// putAtt sets an attribute, replacing any existing one of the same name.
func (s *schema) putAtt(v, name string, value interface{}) ncfile.Status {
	if name == "" {
		return ncfile.EINVAL
	}
	if !validType(value) {
		return ncfile.EBADTYPE
	}
	atts := &s.atts
	if v != "" {
		vv := s.variable(v)
		if vv == nil {
			return ncfile.ENOTVAR
		}
		atts = &vv.atts
	}
	for i := range *atts {
		if (*atts)[i].name == name {
			(*atts)[i].value = value
			return ncfile.NoErr
		}
	}
	*atts = append(*atts, attDef{name: name, value: value})
	return ncfile.NoErr
}

// version is the CDF version byte requested by the format.
func (s *schema) version() byte {
	if s.format == ncfile.Format64BitOffset {
		return 2
	}
	return 1
}

func (s *schema) header() *cdf.Header {
	names := make([]string, len(s.dims))
	lengths := make([]int, len(s.dims))
	for i, d := range s.dims {
		names[i] = d.name
		lengths[i] = d.length
	}
	h := cdf.NewHeader(names, lengths)
	for _, a := range s.atts {
		h.AddAttribute("", a.name, a.value)
	}
	for _, v := range s.vars {
		h.AddVariable(v.name, v.dims, v.zero)
		for _, a := range v.atts {
			h.AddAttribute(v.name, a.name, a.value)
		}
	}
	return h
}

// write stores the header described by s in rw and fills the fixed-size
// variables with their fill values. It only writes to rw, so it can be
// run against a sizeProbe.
func (s *schema) write(rw cdf.ReaderWriterAt) error {
	h := s.header()
	if len(s.vars) == 0 {
		// cdf cannot Define a header without variables. Such a header
		// holds no offsets, so any version byte describes it correctly.
		var buf bytes.Buffer
		if err := h.WriteHeader(&buf); err != nil {
			return err
		}
		b := buf.Bytes()
		b[3] = s.version()
		_, err := rw.WriteAt(b, 0)
		return err
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return errs[0]
	}
	f, err := cdf.Create(rw, h)
	if err != nil {
		return err
	}
	for _, v := range h.Variables() {
		if h.IsRecordVariable(v) {
			continue
		}
		if err := f.Fill(v); err != nil {
			return err
		}
	}
	return nil
}
