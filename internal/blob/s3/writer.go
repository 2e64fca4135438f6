package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// minPartSize is the S3 lower bound for multipart upload parts (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter against the archive bucket. Pool
// archives are small JSONL documents and go through Put; PutMultipart exists
// for oversized archives of very large pools.
type Writer struct {
	client   *s3.Client
	bucket   string
	uploader *manager.Uploader
}

// NewWriter creates a Writer over the client's archive bucket. The multipart
// uploader is built once and shared across uploads.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client:   c.S3(),
		bucket:   c.Bucket(),
		uploader: manager.NewUploader(c.S3()),
	}
}

// Put uploads an archive document in a single request.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", path, err)
	}
	return nil
}

// PutMultipart uploads data in concurrently uploaded parts of partSize bytes.
// Part sizes below the S3 minimum are clamped to it.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	if partSize < minPartSize {
		partSize = minPartSize
	}

	_, err := w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(path),
		Body:   data,
	}, func(u *manager.Uploader) {
		u.PartSize = partSize
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}
