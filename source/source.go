// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package source opens export documents for import.
//
// A location is a local path, "-" for standard input, or s3://bucket/key.
// ChatGPT's chat.html export is recognized by content and reduced to the JSON
// array embedded in its jsonData script, so callers always receive JSON.
package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the part of the S3 client the opener uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Opener resolves import locations to readers.
type Opener struct {
	s3     ObjectGetter
	stdin  io.Reader
	logger *slog.Logger
}

// Option configures an Opener.
type Option func(*Opener)

// WithS3Client enables s3:// locations.
func WithS3Client(client ObjectGetter) Option {
	return func(o *Opener) {
		o.s3 = client
	}
}

// WithStdin replaces os.Stdin as the reader behind "-".
func WithStdin(r io.Reader) Option {
	return func(o *Opener) {
		o.stdin = r
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Opener) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOpener creates an opener for local files and stdin.
func NewOpener(opts ...Option) *Opener {
	o := &Opener{
		stdin:  os.Stdin,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open returns the export document at location as JSON.
// The caller must close the returned reader.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	location = strings.TrimSpace(location)
	var (
		rc  io.ReadCloser
		err error
	)
	switch {
	case location == "":
		return nil, ErrEmptyLocation
	case location == "-":
		rc = io.NopCloser(o.stdin)
	case strings.HasPrefix(location, "s3://"):
		rc, err = o.openS3(ctx, location)
	default:
		rc, err = os.Open(location)
	}
	if err != nil {
		return nil, err
	}
	o.logger.Debug("opened import source", "location", location)
	return asJSON(rc)
}

func (o *Opener) openS3(ctx context.Context, location string) (io.ReadCloser, error) {
	if o.s3 == nil {
		return nil, ErrS3NotConfigured
	}
	bucket, key, err := ParseS3URL(location)
	if err != nil {
		return nil, err
	}
	out, err := o.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3 object %s: %w", location, err)
	}
	return out.Body, nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", ErrInvalidS3URL
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%q: %w", location, ErrInvalidS3URL)
	}
	return bucket, key, nil
}

// asJSON passes JSON through and converts an HTML export.
func asJSON(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	if !looksLikeHTML(br) {
		return readCloser{Reader: br, Closer: rc}, nil
	}
	defer rc.Close()
	data, err := ExtractHTMLExport(br)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func looksLikeHTML(br *bufio.Reader) bool {
	peek, _ := br.Peek(512)
	peek = bytes.TrimPrefix(peek, []byte("\xef\xbb\xbf"))
	peek = bytes.TrimLeft(peek, " \t\r\n")
	return len(peek) > 0 && peek[0] == '<'
}

type readCloser struct {
	io.Reader
	io.Closer
}
