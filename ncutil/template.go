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
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/spatialmodel/ncfile"
)

// Template describes the contents of a new dataset. It is read from a
// TOML file such as:
//
//	[Attributes]
//	title = "example"
//
//	[[Dims]]
//	Name = "time"
//	Length = 0
//
//	[[Vars]]
//	Name = "t"
//	Type = "double"
//	Dims = ["time"]
//	Values = [0.0, 1.0]
//	[Vars.Attributes]
//	units = "hours"
//
// A dimension of length 0 is the record dimension.
type Template struct {
	Dims       []DimTemplate
	Vars       []VarTemplate
	Attributes map[string]interface{}
}

// DimTemplate is a dimension of a Template.
type DimTemplate struct {
	Name   string
	Length int
}

// VarTemplate is a variable of a Template. Type is one of byte, char,
// short, int, float or double. Values, if given, are written once the
// dataset leaves define mode; Text does the same for char variables.
type VarTemplate struct {
	Name       string
	Type       string
	Dims       []string
	Attributes map[string]interface{}
	Values     []float64
	Text       string
}

// ReadTemplate decodes the TOML template at path.
func ReadTemplate(path string) (*Template, error) {
	t := new(Template)
	if _, err := toml.DecodeFile(path, t); err != nil {
		return nil, fmt.Errorf("ncutil: reading template %s: %v", path, err)
	}
	return t, nil
}

func zeroValue(typ string) (interface{}, error) {
	switch typ {
	case "byte":
		return []uint8{}, nil
	case "char":
		return "", nil
	case "short":
		return []int16{}, nil
	case "int":
		return []int32{}, nil
	case "float":
		return []float32{}, nil
	case "double", "":
		return []float64{}, nil
	}
	return nil, fmt.Errorf("ncutil: invalid variable type %q", typ)
}

// convert returns values as a slice of typ.
func convert(typ string, values []float64) interface{} {
	switch typ {
	case "byte":
		o := make([]uint8, len(values))
		for i, v := range values {
			o[i] = uint8(v)
		}
		return o
	case "short":
		o := make([]int16, len(values))
		for i, v := range values {
			o[i] = int16(v)
		}
		return o
	case "int":
		o := make([]int32, len(values))
		for i, v := range values {
			o[i] = int32(v)
		}
		return o
	case "float":
		o := make([]float32, len(values))
		for i, v := range values {
			o[i] = float32(v)
		}
		return o
	}
	return values
}

// attValue converts a decoded TOML value to an attribute value. Integers
// become int, other numbers double.
func attValue(name string, v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case int64:
		return []int32{int32(v)}, nil
	case float64:
		return []float64{v}, nil
	case []interface{}:
		ints := make([]int32, 0, len(v))
		floats := make([]float64, 0, len(v))
		for _, e := range v {
			switch e := e.(type) {
			case int64:
				ints = append(ints, int32(e))
				floats = append(floats, float64(e))
			case float64:
				floats = append(floats, e)
			default:
				return nil, fmt.Errorf("ncutil: attribute %s: invalid element %v", name, e)
			}
		}
		if len(ints) == len(v) {
			return ints, nil
		}
		return floats, nil
	}
	return nil, fmt.Errorf("ncutil: attribute %s: invalid value %v (%T)", name, v, v)
}

// Define adds the dimensions, variables and attributes of t to the
// dataset f, which must be in define mode.
func (t *Template) Define(f *ncfile.File) error {
	e, id := f.Engine(), f.ID()
	for _, d := range t.Dims {
		if err := ncfile.Check(e.DefDim(id, d.Name, d.Length), "nc_def_dim", d.Name); err != nil {
			return err
		}
	}
	for _, v := range t.Vars {
		zero, err := zeroValue(v.Type)
		if err != nil {
			return err
		}
		if err := ncfile.Check(e.DefVar(id, v.Name, v.Dims, zero), "nc_def_var", v.Name); err != nil {
			return err
		}
		if err := putAtts(f, v.Name, v.Attributes); err != nil {
			return err
		}
	}
	return putAtts(f, "", t.Attributes)
}

func putAtts(f *ncfile.File, v string, atts map[string]interface{}) error {
	names := make([]string, 0, len(atts))
	for name := range atts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value, err := attValue(name, atts[name])
		if err != nil {
			return err
		}
		if err := ncfile.Check(f.Engine().PutAtt(f.ID(), v, name, value), "nc_put_att", v+":"+name); err != nil {
			return err
		}
	}
	return nil
}

// Fill writes the Values and Text of t's variables to f, which must have
// left define mode.
func (t *Template) Fill(f *ncfile.File) error {
	for _, v := range t.Vars {
		var data interface{}
		switch {
		case v.Type == "char" && v.Text != "":
			data = v.Text
		case v.Type != "char" && len(v.Values) > 0:
			data = convert(v.Type, v.Values)
		default:
			continue
		}
		if err := ncfile.Check(f.Engine().PutVar(f.ID(), v.Name, data), "nc_put_var", v.Name); err != nil {
			return err
		}
	}
	return nil
}
