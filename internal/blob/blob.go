// Package blob stores export artifacts in S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const DefaultLinkTTL = 15 * time.Minute

var ErrInvalidConfig = errors.New("invalid blob storage config")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether uploads are configured at all.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	var problems []string
	if strings.Contains(c.Endpoint, "://") {
		problems = append(problems, "endpoint must be host[:port] without a scheme")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		problems = append(problems, "access and secret keys are required")
	}
	if len(c.Bucket) < 3 || len(c.Bucket) > 63 || strings.ToLower(c.Bucket) != c.Bucket {
		problems = append(problems, "bucket must be 3-63 lowercase characters")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Object describes an uploaded artifact.
type Object struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store uploads artifacts and hands out presigned download links.
type Store struct {
	client  *minio.Client
	bucket  string
	linkTTL time.Duration
	now     func() time.Time
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Store{
		client:  client,
		bucket:  cfg.Bucket,
		linkTTL: DefaultLinkTTL,
		now:     time.Now,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads data under key and returns a presigned GET link for it.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("put object %s: %w", key, err)
	}
	link, err := s.PresignedURL(ctx, key, path.Base(key))
	if err != nil {
		return Object{}, err
	}
	return Object{
		Key:       key,
		Size:      info.Size,
		URL:       link,
		ExpiresAt: s.now().Add(s.linkTTL).UTC(),
	}, nil
}

// PresignedURL signs a download link that forces filename as attachment.
func (s *Store) PresignedURL(ctx context.Context, key, filename string) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.linkTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// ExportKey builds the object key for an export artifact:
// exports/{org}/{yyyy}/{mm}/{dd}/{stamp}-{filename}.
func ExportKey(orgID, filename string, at time.Time) string {
	at = at.UTC()
	return path.Join(
		"exports",
		cleanSegment(orgID),
		at.Format("2006"),
		at.Format("01"),
		at.Format("02"),
		fmt.Sprintf("%s-%s", at.Format("150405"), cleanSegment(filename)),
	)
}

func cleanSegment(value string) string {
	value = strings.TrimSpace(value)
	value = strings.NewReplacer("/", "-", `\`, "-", "..", "-").Replace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
