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
	"errors"
	"io"

	"github.com/spf13/afero"
)

// storage holds the bytes of one session.
type storage interface {
	io.ReaderAt
	io.WriterAt
	size() (int64, error)
	sync() error
	close() error
}

// diskStorage is a dataset stored in a file.
type diskStorage struct {
	f afero.File
}

func (d diskStorage) ReadAt(p []byte, off int64) (int, error)  { return d.f.ReadAt(p, off) }
func (d diskStorage) WriteAt(p []byte, off int64) (int, error) { return d.f.WriteAt(p, off) }
func (d diskStorage) sync() error                              { return d.f.Sync() }
func (d diskStorage) close() error                             { return d.f.Close() }

func (d diskStorage) size() (int64, error) {
	fi, err := d.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// errLocked is returned when a write would grow a locked memory buffer.
var errLocked = errors.New("cdfengine: locked memory buffer cannot grow")

// memStorage is a dataset stored in a byte slice. len(data) is the size
// of the dataset. A locked buffer never grows past cap(data).
type memStorage struct {
	data   []byte
	locked bool
	pool   *bufferPool
}

func (m *memStorage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("cdfengine: negative offset")
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStorage) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("cdfengine: negative offset")
	}
	if end := off + int64(len(p)); end > int64(len(m.data)) {
		if err := m.grow(int(end)); err != nil {
			return 0, err
		}
	}
	return copy(m.data[off:], p), nil
}

// grow extends the dataset to n bytes, zeroing the new bytes.
func (m *memStorage) grow(n int) error {
	if n <= cap(m.data) {
		old := len(m.data)
		m.data = m.data[:n]
		for i := old; i < n; i++ {
			m.data[i] = 0
		}
		return nil
	}
	if m.locked {
		return errLocked
	}
	want := 2 * cap(m.data)
	if want < n {
		want = n
	}
	buf := m.pool.get(want)[:n]
	copy(buf, m.data)
	m.pool.put(m.data)
	m.data = buf
	return nil
}

func (m *memStorage) size() (int64, error) { return int64(len(m.data)), nil }
func (m *memStorage) sync() error          { return nil }
func (m *memStorage) close() error         { return nil }

// sizeProbe reads through to a storage but only records how far writes
// would reach. It is used to refuse writes to locked buffers before any
// byte is changed.
type sizeProbe struct {
	r   io.ReaderAt
	end int64
}

func (p *sizeProbe) ReadAt(b []byte, off int64) (int, error) { return p.r.ReadAt(b, off) }

func (p *sizeProbe) WriteAt(b []byte, off int64) (int, error) {
	if end := off + int64(len(b)); end > p.end {
		p.end = end
	}
	return len(b), nil
}
