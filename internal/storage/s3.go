package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"whisperbox/internal/config"
)

// S3Store stores objects in an S3-compatible bucket (AWS S3 or MinIO).
type S3Store struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
	timeout       time.Duration
}

// NewS3Store builds an S3Store from application config. Static credentials
// are used when provided, otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg *config.Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	timeout := cfg.StorageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &S3Store{
		client:        client,
		bucket:        cfg.S3Bucket,
		publicBaseURL: strings.TrimRight(cfg.S3PublicBaseURL, "/"),
		timeout:       timeout,
	}, nil
}

// Upload puts the file under a date-partitioned random key and returns its
// public URL and key.
func (s *S3Store) Upload(ctx context.Context, localPath, folder, contentType string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	file, err := os.Open(localPath)
	if err != nil {
		return "", "", fmt.Errorf("opening upload source: %w", err)
	}
	defer file.Close()

	key := s.newKey(folder, filepath.Ext(localPath))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", fmt.Errorf("uploading object %q: %w", key, err)
	}

	return fmt.Sprintf("%s/%s", s.publicBaseURL, key), key, nil
}

// Delete removes the object with the given key.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting object %q: %w", key, err)
	}
	return nil
}

func (s *S3Store) newKey(folder, ext string) string {
	now := time.Now().UTC()
	return fmt.Sprintf("%s/%d/%02d/%s%s", folder, now.Year(), now.Month(), uuid.New(), ext)
}
