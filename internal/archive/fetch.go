package archive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectURI locates an archive in S3-compatible object storage.
type ObjectURI struct {
	Bucket string
	Key    string
}

// ParseObjectURI parses "s3://bucket/key". The second result is false when
// src is not an object URI at all (a plain path); an error is returned only
// for malformed s3 URIs.
func ParseObjectURI(src string) (ObjectURI, bool, error) {
	if !strings.HasPrefix(src, "s3://") {
		return ObjectURI{}, false, nil
	}
	u, err := url.Parse(src)
	if err != nil {
		return ObjectURI{}, true, fmt.Errorf("parse object uri %q: %w", src, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return ObjectURI{}, true, fmt.Errorf("object uri %q must be s3://bucket/key", src)
	}
	return ObjectURI{Bucket: u.Host, Key: key}, true, nil
}

// MinIOConfig holds object storage connection settings.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// objectSource is the slice of an object store the fetcher reads from.
type objectSource interface {
	stat(ctx context.Context, obj ObjectURI) (size int64, etag string, err error)
	open(ctx context.Context, obj ObjectURI) (io.ReadCloser, error)
}

type minioSource struct {
	mc *minio.Client
}

func (s minioSource) stat(ctx context.Context, obj ObjectURI) (int64, string, error) {
	info, err := s.mc.StatObject(ctx, obj.Bucket, obj.Key, minio.StatObjectOptions{})
	if err != nil {
		return 0, "", err
	}
	return info.Size, info.ETag, nil
}

func (s minioSource) open(ctx context.Context, obj ObjectURI) (io.ReadCloser, error) {
	return s.mc.GetObject(ctx, obj.Bucket, obj.Key, minio.GetObjectOptions{})
}

// Fetcher downloads archives from object storage to local files so they
// can be opened with random access.
type Fetcher struct {
	src objectSource
}

// NewFetcher creates a MinIO-backed fetcher.
func NewFetcher(cfg MinIOConfig) (*Fetcher, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("create minio client: endpoint is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Fetcher{src: minioSource{mc: mc}}, nil
}

// Resolve returns a local path for src. Plain paths are returned unchanged.
// Object URIs are downloaded into dir under a name derived from the object
// key and its ETag, so a cached copy is reused only while the object is
// unchanged. Downloads land in a private temporary file and are renamed into
// place, which keeps concurrent invocations from reading a partial archive.
func (f *Fetcher) Resolve(ctx context.Context, src, dir string) (string, error) {
	obj, isObject, err := ParseObjectURI(src)
	if err != nil {
		return "", err
	}
	if !isObject {
		return src, nil
	}
	if f == nil || f.src == nil {
		return "", fmt.Errorf("archive %s is in object storage but no minio endpoint is configured", obj)
	}

	size, etag, err := f.src.stat(ctx, obj)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", obj, err)
	}
	local := filepath.Join(dir, cacheName(obj, etag))
	if fi, err := os.Stat(local); err == nil && fi.Size() == size {
		return local, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("download %s: %w", obj, err)
	}
	if err := f.download(ctx, obj, size, local); err != nil {
		return "", fmt.Errorf("download %s: %w", obj, err)
	}
	return local, nil
}

func (f *Fetcher) download(ctx context.Context, obj ObjectURI, size int64, local string) error {
	body, err := f.src.open(ctx, obj)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(local), filepath.Base(local)+".*.tmp")
	if err != nil {
		return err
	}
	// No-op once renamed.
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n != size {
		return fmt.Errorf("short read: got %d of %d bytes", n, size)
	}
	return os.Rename(tmp.Name(), local)
}

// cacheName is the local file name for obj at the given ETag.
func cacheName(obj ObjectURI, etag string) string {
	tag := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return -1
	}, etag)
	if tag == "" {
		tag = "untagged"
	}
	return tag + "-" + obj.Bucket + "-" + strings.ReplaceAll(obj.Key, "/", "_")
}

// String formats the URI.
func (o ObjectURI) String() string {
	return "s3://" + o.Bucket + "/" + o.Key
}
