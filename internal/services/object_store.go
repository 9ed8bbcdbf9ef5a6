package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"cloud.google.com/go/storage"
)

// ObjectStore is the slice of a storage bucket that avatar handling needs.
type ObjectStore interface {
	Bucket() string
	Write(ctx context.Context, name, contentType string, metadata map[string]string, r io.Reader) error
	Metadata(ctx context.Context, name string) (map[string]string, error)
	// Promote copies from to to, merges metadata into the copy and deletes from.
	Promote(ctx context.Context, from, to string, metadata map[string]string) error
	Delete(ctx context.Context, name string) error
}

type GCSObjectStore struct {
	client *storage.Client
	bucket string
}

// NewGCSObjectStore creates a storage client once at startup.
func NewGCSObjectStore(ctx context.Context, bucket string) (*GCSObjectStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &GCSObjectStore{client: client, bucket: bucket}, nil
}

func (g *GCSObjectStore) Bucket() string {
	return g.bucket
}

func (g *GCSObjectStore) Write(ctx context.Context, name, contentType string, metadata map[string]string, r io.Reader) error {
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("write object: %w", err)
	}
	return w.Close()
}

func (g *GCSObjectStore) Metadata(ctx context.Context, name string) (map[string]string, error) {
	attrs, err := g.client.Bucket(g.bucket).Object(name).Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("object attrs: %w", err)
	}
	return attrs.Metadata, nil
}

func (g *GCSObjectStore) Promote(ctx context.Context, from, to string, metadata map[string]string) error {
	b := g.client.Bucket(g.bucket)
	src := b.Object(from)
	dst := b.Object(to)

	// Freshly finalized uploads are occasionally not readable yet.
	var attrs *storage.ObjectAttrs
	var err error
	const maxRetries = 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		attrs, err = src.Attrs(ctx)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrObjectNotExist) && attempt < maxRetries-1 {
			backoff := time.Duration(attempt+1) * 500 * time.Millisecond
			log.Printf("[objects] object not found yet, retrying in %v (attempt %d/%d): %s", backoff, attempt+1, maxRetries, from)
			time.Sleep(backoff)
			continue
		}
		return fmt.Errorf("source attrs: %w", err)
	}

	md := map[string]string{}
	for k, v := range attrs.Metadata {
		md[k] = v
	}
	for k, v := range metadata {
		md[k] = v
	}

	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if _, err := dst.Update(ctx, storage.ObjectAttrsToUpdate{Metadata: md}); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return src.Delete(ctx)
}

func (g *GCSObjectStore) Delete(ctx context.Context, name string) error {
	err := g.client.Bucket(g.bucket).Object(name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (g *GCSObjectStore) Close() error {
	return g.client.Close()
}
