package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"
)

// Artifact is a finished stage output ready to be exposed.
type Artifact struct {
	Stage string
	Root  string
	Name  string
	File  string
	Path  string
}

// Key is the artifact's location relative to the public root.
func (a Artifact) Key() string {
	return path.Join(a.Root, a.Name, a.File)
}

// Publisher turns a finished artifact into a download URL.
type Publisher interface {
	Publish(ctx context.Context, baseURL string, a Artifact) (string, error)
}

// LocalPublisher links to the artifact as served from the static roots.
type LocalPublisher struct{}

func (LocalPublisher) Publish(_ context.Context, baseURL string, a Artifact) (string, error) {
	if baseURL == "" {
		return "", errors.New("base url is required")
	}
	return strings.TrimRight(baseURL, "/") + "/" + a.Key(), nil
}

// ObjectStore is the subset of the S3 client used for publishing.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, sha256 string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// S3Publisher uploads artifacts to a bucket and links to a presigned GET URL.
type S3Publisher struct {
	Store  ObjectStore
	Bucket string
	Prefix string
	TTL    time.Duration
}

func (p S3Publisher) Publish(ctx context.Context, _ string, a Artifact) (string, error) {
	if p.Store == nil {
		return "", errors.New("object store is required")
	}
	if p.Bucket == "" {
		return "", errors.New("bucket is required")
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	key := a.Key()
	if p.Prefix != "" {
		key = path.Join(p.Prefix, key)
	}

	file, err := os.Open(a.Path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", a.Path, err)
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", a.Path, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind %s: %w", a.Path, err)
	}

	if err := p.Store.PutObject(ctx, p.Bucket, key, file, size, hex.EncodeToString(hash.Sum(nil))); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	url, err := p.Store.PresignGet(ctx, p.Bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return url, nil
}
