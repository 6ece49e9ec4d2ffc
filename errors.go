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
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// ErrMemoryBacked is returned by Close when the File holds an in-memory
// dataset, which must be closed with CloseMemory.
var ErrMemoryBacked = errors.New("ncfile: Close called on a memory-backed file; use CloseMemory")

// BackendError is returned when an Engine call reports a nonzero Status.
type BackendError struct {
	// Status is the code returned by the engine.
	Status Status

	// Op is the engine call that failed, e.g. "nc_open".
	Op string

	// Path is the dataset path, if the call involved one.
	Path string

	// File and Line give the source location the call was made from.
	File string
	Line int
}

func (e *BackendError) Error() string {
	loc := fmt.Sprintf("%s:%d", filepath.Base(e.File), e.Line)
	if e.Path != "" {
		return fmt.Sprintf("ncfile: %s %s: %v (status %d) at %s", e.Op, e.Path, e.Status, int(e.Status), loc)
	}
	return fmt.Sprintf("ncfile: %s: %v (status %d) at %s", e.Op, e.Status, int(e.Status), loc)
}

// Check returns nil if st is NoErr and a *BackendError recording op,
// path and the location Check was called from otherwise.
func Check(st Status, op, path string) error {
	if st == NoErr {
		return nil
	}
	return newBackendError(st, op, path, 2)
}

// check is Check for calls made inside this package.
func check(st Status, op, path string) error {
	if st == NoErr {
		return nil
	}
	return newBackendError(st, op, path, 2)
}

func newBackendError(st Status, op, path string, skip int) *BackendError {
	_, file, line, _ := runtime.Caller(skip)
	return &BackendError{
		Status: st,
		Op:     op,
		Path:   path,
		File:   file,
		Line:   line,
	}
}

// IsStatus reports whether err is, or wraps, a *BackendError with
// status st.
func IsStatus(err error, st Status) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Status == st
	}
	return false
}
