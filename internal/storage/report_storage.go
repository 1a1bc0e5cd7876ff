package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/SAP-F-2025/exam-attempt-service/internal/config"
)

// ReportStorage archives generated reports and returns where they can be fetched
type ReportStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string) (string, error)
	GetURL(name string) string
}

type MinioReportStorage struct {
	client *minio.Client
	bucket string
}

func NewMinioReportStorage(cfg config.MinioConfig) (*MinioReportStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioReportStorage{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the report bucket on first use
func (s *MinioReportStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioReportStorage) Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, name, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return s.GetURL(name), nil
}

func (s *MinioReportStorage) GetURL(name string) string {
	return "/" + s.bucket + "/" + name
}
