// Package objectstore uploads profiles to S3-compatible object storage as zstd-compressed
// MessagePack objects.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/sink"
	"github.com/chrissnell/riverprofile/internal/sink/msgpackfile"
	"github.com/chrissnell/riverprofile/internal/types"
	"github.com/chrissnell/riverprofile/pkg/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const contentType = "application/x-msgpack"

type putter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Sink writes objects under <prefix>/<run id>/
type Sink struct {
	client putter
	bucket string
	prefix string
}

// New connects to the endpoint and checks that the bucket exists
func New(ctx context.Context, c *config.ObjectStoreSinkData, runID string) (*Sink, error) {
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: c.UseSSL,
		Region: c.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: %w", err)
	}
	ok, err := client.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, fmt.Errorf("objectstore: checking bucket %s: %w", c.Bucket, err)
	}
	if !ok {
		return nil, fmt.Errorf("objectstore: bucket %s does not exist", c.Bucket)
	}
	return newSink(client, c.Bucket, c.Prefix, runID), nil
}

func newSink(client putter, bucket, prefix, runID string) *Sink {
	return &Sink{client: client, bucket: bucket, prefix: path.Join(prefix, runID)}
}

func (s *Sink) Name() string { return "objectstore" }

// Key returns the object key of a river's profile
func (s *Sink) Key(p *profile.Profile) string {
	return path.Join(s.prefix, sink.RiverFileName(p.Head, msgpackfile.Extension(config.CompressionZstd)))
}

func (s *Sink) WriteProfile(ctx context.Context, p *profile.Profile) error {
	return s.put(ctx, s.Key(p), p)
}

// RecordRun uploads the diagnostics alongside the profiles
func (s *Sink) RecordRun(ctx context.Context, d *types.Diagnostics) error {
	return s.put(ctx, path.Join(s.prefix, "diagnostics"+msgpackfile.Extension(config.CompressionZstd)), d)
}

func (s *Sink) Close() error { return nil }

func (s *Sink) put(ctx context.Context, key string, v any) error {
	data, err := msgpackfile.Marshal(config.CompressionZstd, v)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:     contentType,
		ContentEncoding: "zstd",
	})
	if err != nil {
		return fmt.Errorf("objectstore: uploading %s: %w", key, err)
	}
	return nil
}
