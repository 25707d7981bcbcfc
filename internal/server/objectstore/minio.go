package objectstore

import (
	"context"
	"errors"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection settings of a MinIO endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type minioAPI interface {
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// MinioStore is a Store backed by minio-go.
type MinioStore struct {
	client minioAPI
	bucket string
	region string
}

func NewMinioStore(c MinioConfig) (*MinioStore, error) {
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: c.UseSSL,
		Region: c.Region,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStore{client: client, bucket: c.Bucket, region: c.Region}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (m *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return unavailable("bucket exists", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return unavailable("make bucket", m.bucket, err)
	}
	return nil
}

func (m *MinioStore) Put(ctx context.Context, locator string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, locator, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return unavailable("put", locator, err)
	}
	return nil
}

// Get stats the object first because minio.GetObject defers errors
// until the first read.
func (m *MinioStore) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	if _, err := m.client.StatObject(ctx, m.bucket, locator, minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, unavailable("stat", locator, err)
	}
	obj, err := m.client.GetObject(ctx, m.bucket, locator, minio.GetObjectOptions{})
	if err != nil {
		return nil, unavailable("get", locator, err)
	}
	return obj, nil
}

func (m *MinioStore) Delete(ctx context.Context, locator string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, locator, minio.RemoveObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return ErrObjectNotFound
		}
		return unavailable("delete", locator, err)
	}
	return nil
}

func isMinioNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey"
	}
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
