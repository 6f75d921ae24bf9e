package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// TempDir receives the local copies handed to the extractor.
	TempDir string
}

// MinioStager keeps uploads in an object store so API and workers need no shared disk.
type MinioStager struct {
	client  *minio.Client
	bucket  string
	tempDir string
}

func NewMinioStager(ctx context.Context, cfg MinioConfig) (*MinioStager, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}

	tmp := cfg.TempDir
	if tmp == "" {
		tmp = os.TempDir()
	}
	return &MinioStager{client: client, bucket: cfg.Bucket, tempDir: tmp}, nil
}

func (s *MinioStager) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	key := "uploads/" + stagedName()
	_, err := s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType:  "application/pdf",
		UserMetadata: map[string]string{"filename": name},
	})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", key, err)
	}
	return key, nil
}

// Open downloads the object to a temp file removed by release.
func (s *MinioStager) Open(ctx context.Context, ref string) (string, func(), error) {
	path := filepath.Join(s.tempDir, filepath.Base(ref))
	if err := s.client.FGetObject(ctx, s.bucket, ref, path, minio.GetObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			// the extractor reports the missing file
			return path, func() {}, nil
		}
		return "", nil, fmt.Errorf("minio get %s: %w", ref, err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func (s *MinioStager) Remove(ctx context.Context, ref string) error {
	return s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{})
}
