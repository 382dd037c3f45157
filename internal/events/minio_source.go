package events

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/notification"
	"go.uber.org/zap"
)

const objectCreatedEvent = "s3:ObjectCreated:*"

// UploadEvent is one stored document object. Keys are laid out as
// applicationID/documentID/filename.
type UploadEvent struct {
	ApplicationID string
	DocumentID    string
	Filename      string
	ObjectKey     string
	EventName     string
}

type UploadEventSource interface {
	Run(ctx context.Context, handler func(context.Context, UploadEvent) error) error
}

type MinioUploadEventSource struct {
	client *minio.Client
	bucket string
	prefix string
	suffix string
	logger *zap.Logger
}

func NewMinioUploadEventSource(client *minio.Client, bucket string, prefix string, suffix string, logger *zap.Logger) *MinioUploadEventSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinioUploadEventSource{
		client: client,
		bucket: bucket,
		prefix: prefix,
		suffix: suffix,
		logger: logger,
	}
}

func (s *MinioUploadEventSource) Run(ctx context.Context, handler func(context.Context, UploadEvent) error) error {
	notificationCh := s.client.ListenBucketNotification(ctx, s.bucket, s.prefix, s.suffix, []string{objectCreatedEvent})
	for {
		select {
		case <-ctx.Done():
			return nil
		case info, ok := <-notificationCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream closed")
			}
			if info.Err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream error: %w", info.Err)
			}
			for _, event := range uploadEvents(info.Records, s.logger) {
				if err := handler(ctx, event); err != nil {
					return err
				}
			}
		}
	}
}

// uploadEvents drops records whose key is not a document object, such as
// compiled packages written back into the bucket.
func uploadEvents(records []notification.Event, logger *zap.Logger) []UploadEvent {
	out := make([]UploadEvent, 0, len(records))
	for _, record := range records {
		objectKey, err := decodeObjectKey(record.S3.Object.Key)
		if err != nil {
			logger.Debug("skipping notification", zap.String("key", record.S3.Object.Key), zap.Error(err))
			continue
		}
		applicationID, documentID, filename, err := parseObjectKey(objectKey)
		if err != nil {
			logger.Debug("skipping notification", zap.String("key", objectKey), zap.Error(err))
			continue
		}
		out = append(out, UploadEvent{
			ApplicationID: applicationID,
			DocumentID:    documentID,
			Filename:      filename,
			ObjectKey:     objectKey,
			EventName:     record.EventName,
		})
	}
	return out
}

func decodeObjectKey(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", err
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("object key is empty")
	}
	return decoded, nil
}

func parseObjectKey(objectKey string) (string, string, string, error) {
	cleaned := strings.Trim(strings.ReplaceAll(objectKey, "\\", "/"), "/")
	parts := strings.SplitN(cleaned, "/", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("object key %q does not match application_id/document_id/filename", objectKey)
	}
	applicationID := strings.TrimSpace(parts[0])
	documentID := strings.TrimSpace(parts[1])
	filename := strings.TrimSpace(parts[2])
	if applicationID == "" || documentID == "" || filename == "" {
		return "", "", "", fmt.Errorf("object key %q missing application id, document id or filename", objectKey)
	}
	return applicationID, documentID, filename, nil
}
