package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fileExtension filters which staged objects are ingestion candidates.
const fileExtension = ".csv"

// List returns the keys under the configured prefix whose name ends in .csv,
// in backend listing order. A backend failure here is fatal to the run.
func (c *Client) List(ctx context.Context) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list bucket %s: %w", c.bucket, err)
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); strings.HasSuffix(key, fileExtension) {
				keys = append(keys, key)
			}
		}
	}

	c.logger.Debug("listed bucket", "bucket", c.bucket, "prefix", c.prefix, "csv_files", len(keys))
	return keys, nil
}
