// Package blob issues download links for files kept in S3-compatible storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const DefaultPresignTTL = 15 * time.Minute

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
	TTL       time.Duration
}

// Presigner signs GET URLs for stored files.
type Presigner struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewPresigner(cfg Config) (*Presigner, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("blob endpoint is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	return &Presigner{client: client, bucket: cfg.Bucket, ttl: ttl}, nil
}

// PresignDownload returns a time-limited URL for key. An empty bucket falls
// back to the configured default bucket.
func (p *Presigner) PresignDownload(ctx context.Context, bucket, key string) (string, error) {
	if bucket == "" {
		bucket = p.bucket
	}
	key = strings.TrimPrefix(key, "/")
	if bucket == "" || key == "" {
		return "", errors.New("bucket and key are required")
	}
	signed, err := p.client.PresignedGetObject(ctx, bucket, key, p.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}
	return signed.String(), nil
}
