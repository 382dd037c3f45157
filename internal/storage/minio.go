package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioClient dials MinIO without touching any bucket.
func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
}

func NewMinioStore(ctx context.Context, client *minio.Client, bucket string) (*MinioStore, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// ObjectKey is the storage layout shared with the upload event listener:
// <applicationID>/<documentID>/<filename>.
func ObjectKey(applicationID, documentID, filename string) string {
	return path.Join(applicationID, documentID, path.Base(filename))
}

func (m *MinioStore) PutDocument(ctx context.Context, applicationID, documentID, filename, contentType string, content []byte) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	objectKey := ObjectKey(applicationID, documentID, filename)
	_, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return objectKey, nil
}

func (m *MinioStore) GetDocument(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data.Bytes(), nil
}
