// Package blob stores raw uploaded documents in an S3-compatible object
// store. Each document is written under a generated key so that uploads of
// the same filename never collide, and the public URL recorded in the
// metadata store is derived here.
package blob

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store uploads and deletes document blobs. Implementations must be safe for
// concurrent use.
type Store interface {
	// Upload stores the file at localPath under a generated key that keeps
	// filename's extension, returning the key and the public URL.
	Upload(ctx context.Context, localPath, filename string) (key, publicURL string, err error)
	// Delete removes the object with the given key. Deleting a key that does
	// not exist is not an error.
	Delete(ctx context.Context, key string) error
	// Ping verifies the bucket is reachable.
	Ping(ctx context.Context) error
}

// Config holds the connection settings for an S3-compatible object store.
// All fields except PublicURL and Region are required.
type Config struct {
	// Endpoint is the host:port of the object store (no scheme).
	Endpoint string
	// AccessKey is the access key id.
	AccessKey string
	// SecretKey is the secret access key.
	SecretKey string
	// Bucket is the bucket documents are stored in. Must already exist.
	Bucket string
	// Region is the bucket region. Optional for MinIO deployments.
	Region string
	// UseSSL selects https for both the API connection and derived URLs.
	UseSSL bool
	// PublicURL optionally overrides the base URL used for public links,
	// e.g. a CDN in front of the bucket. Derived from Endpoint when empty.
	PublicURL string
}

// ConfigFromEnv builds a Config from S3_* environment variables.
func ConfigFromEnv() Config {
	return Config{
		Endpoint:  os.Getenv("S3_ENDPOINT"),
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
		Bucket:    os.Getenv("S3_BUCKET"),
		Region:    os.Getenv("S3_REGION"),
		UseSSL:    os.Getenv("S3_USE_SSL") == "true",
		PublicURL: os.Getenv("S3_PUBLIC_URL"),
	}
}

// S3Store is a Store backed by any S3-compatible service (MinIO, AWS S3,
// Cloudflare R2).
type S3Store struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// New connects to the object store described by cfg and verifies the bucket
// exists.
func New(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("blob: S3_ENDPOINT is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blob: S3_BUCKET is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("blob: connect to %s: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("blob: check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("blob: bucket %s does not exist", cfg.Bucket)
	}

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL(cfg),
	}, nil
}

// baseURL resolves the base URL that public object links are built from.
func baseURL(cfg Config) string {
	if cfg.PublicURL != "" {
		return strings.TrimRight(cfg.PublicURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
}

// Upload stores the file at localPath under a fresh key derived from a UUID
// plus filename's extension, and returns the key and public URL.
func (s *S3Store) Upload(ctx context.Context, localPath, filename string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	key := uuid.NewString() + ext

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", "", fmt.Errorf("blob: upload %s: %w", filename, err)
	}

	return key, s.baseURL + "/" + url.PathEscape(key), nil
}

// Delete removes the object with the given key.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("blob: delete %s: %w", key, err)
	}
	return nil
}

// Ping verifies the bucket is still reachable. Used by the readiness probe.
func (s *S3Store) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("blob: ping: %w", err)
	}
	if !exists {
		return fmt.Errorf("blob: ping: bucket %s not found", s.bucket)
	}
	return nil
}

// KeyFromURL extracts the object key from a stored public URL. It is the
// inverse of the URL construction in Upload and tolerates both path-style
// and CDN-style base URLs.
func KeyFromURL(storageURL string) (string, error) {
	u, err := url.Parse(storageURL)
	if err != nil {
		return "", fmt.Errorf("blob: parse storage url: %w", err)
	}
	p := strings.Trim(u.Path, "/")
	if p == "" {
		return "", fmt.Errorf("blob: storage url %q has no key", storageURL)
	}
	// The key is always the last path segment.
	segs := strings.Split(p, "/")
	key, err := url.PathUnescape(segs[len(segs)-1])
	if err != nil {
		return "", fmt.Errorf("blob: unescape key: %w", err)
	}
	return key, nil
}
