package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// chunkSize bounds per-read memory while buffering a download.
const chunkSize = 1 << 20 // 1 MiB

// Fetch downloads one object fully into memory, reading in fixed-size chunks
// and reporting progress after each chunk. progress may be nil; its total
// argument is -1 when the backend does not advertise a content length.
func (c *Client) Fetch(ctx context.Context, key string, progress func(done, total int64)) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	total := int64(-1)
	if out.ContentLength != nil {
		total = *out.ContentLength
	}

	data, err := readChunks(out.Body, total, progress)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return data, nil
}

// readChunks buffers r chunk by chunk so a progress callback can fire while
// the transfer is still in flight.
func readChunks(r io.Reader, total int64, progress func(done, total int64)) ([]byte, error) {
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}

	chunk := make([]byte, chunkSize)
	var done int64
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			done += int64(n)
			if progress != nil {
				progress(done, total)
			}
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}
