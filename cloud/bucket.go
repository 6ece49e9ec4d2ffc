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

// Package cloud loads in-memory netCDF dataset images from blob storage
// and saves them back.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// The currently accepted storage providers are "file" for the local filesystem
// (name is a directory), "gs" for Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("cloud: opening bucket: %v", err)
	}
	name := u.Hostname()
	if u.Scheme == "file" {
		name = filepath.Join(u.Host, filepath.FromSlash(u.Path))
	}
	return openBucket(ctx, u.Scheme, name)
}

func openBucket(ctx context.Context, provider, name string) (*blob.Bucket, error) {
	switch provider {
	case "file":
		return fileblob.OpenBucket(name, nil)
	case "gs":
		return gsBucket(ctx, name)
	case "s3":
		return s3Bucket(ctx, name)
	default:
		return nil, fmt.Errorf("cloud: invalid provider %q", provider)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, c, name, nil)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, err
	}
	return s3blob.OpenBucket(ctx, s, name, nil)
}

// location is a blob URL split into its bucket and key.
type location struct {
	provider, bucket, key string
}

// parseLocation splits a dataset URL. For "file" URLs the bucket is the
// directory holding the dataset; otherwise it is the URL host and the key
// is the path below it.
func parseLocation(rawurl string) (location, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return location{}, fmt.Errorf("cloud: %v", err)
	}
	var loc location
	switch u.Scheme {
	case "file":
		full := filepath.Join(u.Host, filepath.FromSlash(u.Path))
		loc = location{provider: u.Scheme, bucket: filepath.Dir(full), key: filepath.Base(full)}
	case "gs", "s3":
		loc = location{provider: u.Scheme, bucket: u.Hostname(), key: strings.TrimLeft(u.Path, "/")}
	default:
		return location{}, fmt.Errorf("cloud: invalid provider %q in %s", u.Scheme, rawurl)
	}
	if loc.key == "" || loc.key == "." || loc.key == string(filepath.Separator) {
		return location{}, fmt.Errorf("cloud: %s does not name a dataset", rawurl)
	}
	return loc, nil
}

// IsURL reports whether name is a blob URL rather than a local path.
func IsURL(name string) bool {
	return strings.Contains(name, "://")
}

// URL returns name unchanged if it is already a blob URL and otherwise
// the "file" URL of the local path name.
func URL(name string) (string, error) {
	if IsURL(name) {
		return name, nil
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", fmt.Errorf("cloud: %v", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
