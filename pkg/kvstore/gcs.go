package kvstore

import (
	"context"
	"errors"
	"io"

	gcs "cloud.google.com/go/storage"
	"github.com/cyclopcam/logs"
)

// GCSBackend stores each document as a Google Cloud Storage object
type GCSBackend struct {
	bucketName string
	bucket     *gcs.BucketHandle
	log        logs.Log
}

func NewGCSBackend(log logs.Log, bucketName string) (*GCSBackend, error) {
	client, err := gcs.NewClient(context.Background())
	if err != nil {
		return nil, err
	}
	return &GCSBackend{
		bucketName: bucketName,
		bucket:     client.Bucket(bucketName),
		log:        log,
	}, nil
}

func (g *GCSBackend) Read(ctx context.Context, name string) ([]byte, error) {
	r, err := g.bucket.Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (g *GCSBackend) Write(ctx context.Context, name string, data []byte) error {
	w := g.bucket.Object(name).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (g *GCSBackend) Delete(ctx context.Context, name string) error {
	err := g.bucket.Object(name).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrNotExist
	}
	return err
}
