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

import (
	"fmt"
	"syscall"
)

// Status is the result code returned by every Engine call. Zero means
// success, negative values are netCDF error codes and positive values are
// system error numbers.
type Status int

// NoErr is the successful Status.
const NoErr Status = 0

// netCDF error codes.
const (
	EBADID       Status = -33
	ENFILE       Status = -34
	EEXIST       Status = -35
	EINVAL       Status = -36
	EPERM        Status = -37
	ENOTINDEFINE Status = -38
	EINDEFINE    Status = -39
	ENAMEINUSE   Status = -42
	ENOTATT      Status = -43
	EBADTYPE     Status = -45
	EBADDIM      Status = -46
	EUNLIMPOS    Status = -47
	ENOTVAR      Status = -49
	ENOTNC       Status = -51
	EUNLIMIT     Status = -54
	EEDGE        Status = -57
	ENOMEM       Status = -61
	EDIMSIZE     Status = -63
	EIO          Status = -68
	EINTERNAL    Status = -92
	ENOTBUILT    Status = -128
	EDISKLESS    Status = -129
)

var statusText = map[Status]string{
	NoErr:        "No error",
	EBADID:       "NetCDF: Not a valid ID",
	ENFILE:       "NetCDF: Too many files open",
	EEXIST:       "NetCDF: File exists && NC_NOCLOBBER",
	EINVAL:       "NetCDF: Invalid argument",
	EPERM:        "NetCDF: Write to read only",
	ENOTINDEFINE: "NetCDF: Operation not allowed in data mode",
	EINDEFINE:    "NetCDF: Operation not allowed in define mode",
	ENAMEINUSE:   "NetCDF: String match to name in use",
	ENOTATT:      "NetCDF: Attribute not found",
	EBADTYPE:     "NetCDF: Not a valid data type or _FillValue type mismatch",
	EBADDIM:      "NetCDF: Invalid dimension ID or name",
	EUNLIMPOS:    "NetCDF: NC_UNLIMITED in the wrong index",
	ENOTVAR:      "NetCDF: Variable not found",
	ENOTNC:       "NetCDF: Unknown file format",
	EUNLIMIT:     "NetCDF: NC_UNLIMITED size already in use",
	EEDGE:        "NetCDF: Start+count exceeds dimension bound",
	ENOMEM:       "NetCDF: Memory allocation (malloc) failure",
	EDIMSIZE:     "NetCDF: Invalid dimension size",
	EIO:          "NetCDF: I/O failure",
	EINTERNAL:    "NetCDF: Internal library error",
	ENOTBUILT:    "NetCDF: Attempt to use feature that was not turned on when netCDF was built",
	EDISKLESS:    "NetCDF: Error in using diskless access",
}

// String returns the message associated with s.
func (s Status) String() string {
	if s > 0 {
		return syscall.Errno(s).Error()
	}
	if msg, ok := statusText[s]; ok {
		return msg
	}
	return fmt.Sprintf("NetCDF: Unknown error %d", int(s))
}
