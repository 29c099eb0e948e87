package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const gcsStagingPrefix = "staging/"

// GCSClient stages selected files in a Cloud Storage bucket. It is used when
// the wizard runs on several instances that do not share a disk.
type GCSClient struct {
	client     *storage.Client
	bucketName string
}

func NewGCSClient(ctx context.Context, bucketName, projectID, credentialsPath string) (*GCSClient, error) {
	var client *storage.Client
	var err error

	if credentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(credentialsPath))
	} else {
		client, err = storage.NewClient(ctx)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSClient{
		client:     client,
		bucketName: bucketName,
	}, nil
}

func (g *GCSClient) Put(ctx context.Context, name, contentType string, r io.Reader) (string, int64, error) {
	key := GenerateStagingKey(name)
	writer := g.client.Bucket(g.bucketName).Object(gcsStagingPrefix + key).NewWriter(ctx)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	writer.ContentType = contentType

	size, err := io.Copy(writer, r)
	if err != nil {
		writer.Close()
		return "", 0, fmt.Errorf("failed to copy data to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return key, size, nil
}

func (g *GCSClient) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := g.client.Bucket(g.bucketName).Object(gcsStagingPrefix + key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotStaged
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read staged object: %w", err)
	}
	return reader, nil
}

func (g *GCSClient) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucketName).Object(gcsStagingPrefix + key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete staged object: %w", err)
	}
	return nil
}

// Sweep deletes objects under the staging prefix last updated before maxAge.
func (g *GCSClient) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	bucket := g.client.Bucket(g.bucketName)
	cutoff := time.Now().Add(-maxAge)
	it := bucket.Objects(ctx, &storage.Query{Prefix: gcsStagingPrefix})

	removed := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("failed to list staged objects: %w", err)
		}
		if !attrs.Updated.Before(cutoff) {
			continue
		}
		err = bucket.Object(attrs.Name).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return removed, fmt.Errorf("failed to delete staged object: %w", err)
		}
		removed++
	}
	return removed, nil
}

func (g *GCSClient) Close() error {
	return g.client.Close()
}
