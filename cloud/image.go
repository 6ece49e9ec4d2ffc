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
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/spatialmodel/ncfile"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// MaxRetries is the number of times a failed blob transfer is retried.
var MaxRetries uint64 = 5

// retry runs op with exponential backoff until it succeeds, returns a
// permanent error, ctx is done, or MaxRetries is exhausted.
func retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), MaxRetries), ctx)
	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		log.Printf("%v: retrying in %v", err, d)
	})
}

// permanent marks errors that retrying cannot fix.
func permanent(err error) error {
	switch gcerrors.Code(err) {
	case gcerrors.NotFound, gcerrors.PermissionDenied, gcerrors.InvalidArgument:
		return backoff.Permanent(err)
	}
	return err
}

// readBlob reads the given blob from the given bucket.
func readBlob(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	var b bytes.Buffer
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if _, err = io.Copy(&b, r); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// writeBlob writes the given data to the given bucket.
func writeBlob(ctx context.Context, bucket *blob.Bucket, key string, data []byte) error {
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: "application/x-netcdf"})
	if err != nil {
		return err
	}
	if _, err = io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ReadImage downloads the dataset image at rawurl.
func ReadImage(ctx context.Context, rawurl string) ([]byte, error) {
	loc, err := parseLocation(rawurl)
	if err != nil {
		return nil, err
	}
	bucket, err := openBucket(ctx, loc.provider, loc.bucket)
	if err != nil {
		return nil, fmt.Errorf("cloud: reading %s: %v", rawurl, err)
	}
	defer bucket.Close()
	var data []byte
	err = retry(ctx, func() error {
		var err error
		data, err = readBlob(ctx, bucket, loc.key)
		return permanent(err)
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: reading %s: %v", rawurl, err)
	}
	return data, nil
}

// WriteImage uploads data to rawurl, replacing any existing blob.
func WriteImage(ctx context.Context, rawurl string, data []byte) error {
	loc, err := parseLocation(rawurl)
	if err != nil {
		return err
	}
	bucket, err := openBucket(ctx, loc.provider, loc.bucket)
	if err != nil {
		return fmt.Errorf("cloud: writing %s: %v", rawurl, err)
	}
	defer bucket.Close()
	err = retry(ctx, func() error {
		return permanent(writeBlob(ctx, bucket, loc.key, data))
	})
	if err != nil {
		return fmt.Errorf("cloud: writing %s: %v", rawurl, err)
	}
	return nil
}

// OpenImage downloads the dataset at rawurl and opens it in memory with
// mode ncfile.Read or ncfile.Write. The downloaded image is handed to e,
// which may grow it.
func OpenImage(ctx context.Context, e ncfile.Engine, rawurl string, mode ncfile.Mode, format ncfile.Format) (*ncfile.File, error) {
	if mode != ncfile.Read && mode != ncfile.Write {
		return nil, fmt.Errorf("cloud: cannot open %s in mode %v", rawurl, mode)
	}
	data, err := ReadImage(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return ncfile.OpenMemory(e, rawurl, mode, format, len(data), data, false)
}

// SaveImage closes the memory-backed dataset f and uploads its final
// image to rawurl. Once the session is closed f stays Null, even if the
// upload then fails. An image whose ownership moved to the caller is returned to the engine
// once uploaded.
func SaveImage(ctx context.Context, f *ncfile.File, rawurl string) error {
	if f.Backing() != ncfile.MemoryBacked {
		return fmt.Errorf("cloud: saving %s: dataset is %v", rawurl, f.Backing())
	}
	img, err := f.CloseMemory()
	if err != nil {
		return err
	}
	err = WriteImage(ctx, rawurl, img.Data[:img.Size])
	if fr, ok := f.Engine().(ncfile.Freer); ok && img.Transferred() {
		fr.Free(img.Data)
	}
	return err
}

// Exists reports whether a dataset image is stored at rawurl.
func Exists(ctx context.Context, rawurl string) (bool, error) {
	loc, err := parseLocation(rawurl)
	if err != nil {
		return false, err
	}
	bucket, err := openBucket(ctx, loc.provider, loc.bucket)
	if err != nil {
		return false, fmt.Errorf("cloud: checking %s: %v", rawurl, err)
	}
	defer bucket.Close()
	var ok bool
	err = retry(ctx, func() error {
		var err error
		ok, err = bucket.Exists(ctx, loc.key)
		return permanent(err)
	})
	if err != nil {
		return false, fmt.Errorf("cloud: checking %s: %v", rawurl, err)
	}
	return ok, nil
}
