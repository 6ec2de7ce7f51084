// Package artifact mirrors finished job outputs (video, scene source, job
// record) into S3-compatible storage. Uploads are best effort: the job's
// scratch directory stays the authoritative copy for local delivery.
package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type S3Store struct {
	client     *minio.Client
	bucketName string
	region     string
	initOnce   sync.Once
	initErr    error
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &S3Store{
		client:     client,
		bucketName: bucket,
		region:     region,
	}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store is nil")
	}
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// UploadFile stores a local file under jobs/<jobID>/<name>.
func (s *S3Store) UploadFile(ctx context.Context, jobID, localPath, name, contentType string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("artifact %s: %w", localPath, err)
	}

	_, err := s.client.FPutObject(ctx, s.bucketName, objectKey(jobID, name), localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// Get reads one stored artifact back.
func (s *S3Store) Get(ctx context.Context, jobID, name string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucketName, objectKey(jobID, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// DeleteJob removes every artifact stored for a job.
func (s *S3Store) DeleteJob(ctx context.Context, jobID string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	prefix := objectKey(jobID, "")
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return obj.Err
		}
		if err := s.client.RemoveObject(ctx, s.bucketName, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func objectKey(jobID, name string) string {
	return path.Join("jobs", jobID, name)
}
