package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jonaylor89/freqmoda/pkg/pathsafe"
)

// GCSConfig holds the parameters for the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string // empty uses application-default credentials
	PathPrefix      string
}

// GCSStore stores objects in a Google Cloud Storage bucket, mirroring
// S3Store's shape so both satisfy Store identically.
type GCSStore struct {
	client     *storage.Client
	bucket     string
	pathPrefix string
}

// NewGCS constructs a GCSStore.
func NewGCS(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, pathPrefix: cfg.PathPrefix}, nil
}

func (g *GCSStore) FullPath(key string) string {
	safe, err := pathsafe.Normalise(key)
	if err != nil {
		safe = "_"
	}
	if g.pathPrefix != "" {
		return g.pathPrefix + "/" + safe
	}
	return safe
}

func (g *GCSStore) object(key string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(g.FullPath(key))
}

func (g *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("new reader %q: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Put writes atomically: GCS object writers are all-or-nothing -- the object
// only becomes visible on a successful Close, so a failed write never leaves
// a partial object readable.
func (g *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	w := g.object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer %q: %w", key, err)
	}
	return nil
}

func (g *GCSStore) Delete(ctx context.Context, key string) error {
	err := g.object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (g *GCSStore) Stat(ctx context.Context, key string) (int64, bool, error) {
	attrs, err := g.object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return attrs.Size, true, nil
}
