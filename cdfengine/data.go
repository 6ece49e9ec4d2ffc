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
	"io"
	"reflect"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/ncfile"
)

// count returns the number of elements in values, which must be a slice
// or a string.
func count(values interface{}) int {
	if s, ok := values.(string); ok {
		return len(s)
	}
	return reflect.ValueOf(values).Len()
}

func product(lengths []int) int {
	n := 1
	for _, l := range lengths {
		n *= l
	}
	return n
}

// matches reports whether values can be stored in a variable whose zero
// value is zero. CHAR variables take a string or a []byte.
func matches(zero, values interface{}) bool {
	if _, ok := zero.(string); ok {
		switch values.(type) {
		case string, []byte:
			return true
		}
		return false
	}
	return reflect.TypeOf(zero) == reflect.TypeOf(values)
}

// done reports whether a cdf transfer finished. cdf reports reaching the
// exact end of a variable as io.EOF.
func done(err error) bool {
	return err == nil || err == io.EOF
}

// PutVar implements ncfile.Engine. values replaces the whole variable;
// for a record variable its length sets the number of records written.
func (e *Engine) PutVar(id int, name string, values interface{}) ncfile.Status {
	return e.withSession("put_var", id, func(s *session) ncfile.Status {
		switch {
		case !s.writable:
			return ncfile.EPERM
		case s.define:
			return ncfile.EINDEFINE
		}
		h := s.file.Header
		lengths := h.Lengths(name)
		if lengths == nil {
			return ncfile.ENOTVAR
		}
		if !matches(h.ZeroValue(name, 0), values) {
			return ncfile.EBADTYPE
		}
		n := count(values)
		nrec := 0
		if h.IsRecordVariable(name) {
			row := product(lengths[1:])
			if (row == 0 && n != 0) || (row != 0 && n%row != 0) {
				return ncfile.EEDGE
			}
			if row != 0 {
				nrec = n / row
			}
		} else if n != product(lengths) {
			return ncfile.EEDGE
		}
		if n == 0 {
			return ncfile.NoErr
		}
		if s.mem != nil && s.mem.locked {
			probe := &sizeProbe{r: s.store}
			pf, err := cdf.Open(probe)
			if err != nil {
				return ncfile.EINTERNAL
			}
			if st := s.writeVar(pf, name, values, nrec); st != ncfile.NoErr {
				return st
			}
			if probe.end > int64(cap(s.mem.data)) {
				return ncfile.ENOMEM
			}
		}
		return s.writeVar(s.file, name, values, nrec)
	})
}

// writeVar writes values to variable name through f. Records past the
// current end of the dataset are first filled with fill values so that
// the record count stays consistent across variables.
func (s *session) writeVar(f *cdf.File, name string, values interface{}, nrec int) ncfile.Status {
	if nrec > 0 {
		size, err := s.store.size()
		if err != nil {
			return errStatus(err)
		}
		for r := int(f.Header.NumRecs(size)); r < nrec; r++ {
			if err := f.FillRecord(r); err != nil {
				return errStatus(err)
			}
		}
	}
	if _, err := f.Writer(name, nil, nil).Write(values); !done(err) {
		return errStatus(err)
	}
	return ncfile.NoErr
}

// GetVar implements ncfile.Engine. It returns every value of the
// variable; CHAR variables are returned as a string.
func (e *Engine) GetVar(id int, name string) (values interface{}, st ncfile.Status) {
	st = e.withSession("get_var", id, func(s *session) ncfile.Status {
		if s.define {
			return ncfile.EINDEFINE
		}
		h := s.file.Header
		lengths := h.Lengths(name)
		if lengths == nil {
			return ncfile.ENOTVAR
		}
		end := make([]int, len(lengths))
		for i, l := range lengths {
			end[i] = l - 1
		}
		n := product(lengths)
		if h.IsRecordVariable(name) {
			size, err := s.store.size()
			if err != nil {
				return errStatus(err)
			}
			nrec := int(h.NumRecs(size))
			end[0] = nrec - 1
			n = nrec * product(lengths[1:])
		}
		_, isChar := h.ZeroValue(name, 0).(string)
		if n == 0 {
			values = h.ZeroValue(name, 0)
			return ncfile.NoErr
		}
		buf := h.ZeroValue(name, n)
		if isChar {
			buf = make([]byte, n)
		}
		if _, err := s.file.Reader(name, nil, end).Read(buf); !done(err) {
			return errStatus(err)
		}
		values = buf
		if isChar {
			values = string(buf.([]byte))
		}
		return ncfile.NoErr
	})
	return values, st
}

// Dim describes a dimension. Length is zero for the unlimited dimension.
type Dim struct {
	Name   string
	Length int
}

// Var describes a variable.
type Var struct {
	Name       string
	Type       string
	Dims       []string
	Attributes map[string]interface{}
}

// Summary describes the contents of a dataset.
type Summary struct {
	Format     int
	Records    int
	Dims       []Dim
	Vars       []Var
	Attributes map[string]interface{}
}

var typeNames = map[reflect.Type]string{
	reflect.TypeOf([]uint8(nil)):   "byte",
	reflect.TypeOf(""):             "char",
	reflect.TypeOf([]int16(nil)):   "short",
	reflect.TypeOf([]int32(nil)):   "int",
	reflect.TypeOf([]float32(nil)): "float",
	reflect.TypeOf([]float64(nil)): "double",
}

func attributes(h *cdf.Header, v string) map[string]interface{} {
	names := h.Attributes(v)
	if len(names) == 0 {
		return nil
	}
	atts := make(map[string]interface{}, len(names))
	for _, a := range names {
		atts[a] = h.GetAttribute(v, a)
	}
	return atts
}

// Describe returns the dimensions, variables and attributes of an open
// dataset. It fails with EINDEFINE in define mode.
func (e *Engine) Describe(id int) (sum Summary, st ncfile.Status) {
	st = e.withSession("describe", id, func(s *session) ncfile.Status {
		if s.define {
			return ncfile.EINDEFINE
		}
		h := s.file.Header
		size, err := s.store.size()
		if err != nil {
			return errStatus(err)
		}
		sum = Summary{
			Format:     s.format,
			Records:    int(h.NumRecs(size)),
			Attributes: attributes(h, ""),
		}
		lengths := h.Lengths("")
		for i, d := range h.Dimensions("") {
			sum.Dims = append(sum.Dims, Dim{Name: d, Length: lengths[i]})
		}
		for _, v := range h.Variables() {
			sum.Vars = append(sum.Vars, Var{
				Name:       v,
				Type:       typeNames[reflect.TypeOf(h.ZeroValue(v, 0))],
				Dims:       h.Dimensions(v),
				Attributes: attributes(h, v),
			})
		}
		return ncfile.NoErr
	})
	return sum, st
}
