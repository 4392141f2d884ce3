// Package snapshot copies every fetched sheet export to S3-compatible object
// storage, one object per sync.
package snapshot

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"reviewdash/api/internal/sheet"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	UseTLS    bool
}

type Store struct {
	client *minio.Client
	bucket string
	region string
	prefix string
}

func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("snapshot endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("snapshot bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseTLS,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: strings.Trim(cfg.Prefix, "/"),
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
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads the raw CSV and returns the object key.
func (s *Store) Put(ctx context.Context, doc sheet.RawDocument) (string, error) {
	key := ObjectKey(s.prefix, doc.LastUpdated)
	body := strings.NewReader(doc.CSV)
	_, err := s.client.PutObject(ctx, s.bucket, key, body, int64(len(doc.CSV)), minio.PutObjectOptions{
		ContentType: "text/csv; charset=utf-8",
		UserMetadata: map[string]string{
			"lines": fmt.Sprint(doc.Stats.Lines),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload snapshot %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey lays snapshots out by UTC day: <prefix>/2024/05/01/093000.000.csv.
func ObjectKey(prefix string, at time.Time) string {
	at = at.UTC()
	name := at.Format("2006/01/02/150405.000") + ".csv"
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
