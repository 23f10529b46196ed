package object

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/converso-ai/chat-backend/config"
)

type minioStorage struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinIOStorage creates a new object.Storage implementation using MinIO
// and makes sure the configured bucket exists.
func NewMinIOStorage(ctx context.Context, cfg config.MinioConfig, logger *zap.Logger) (Storage, error) {
	logger = logger.With(
		zap.String("host:port", cfg.Host+":"+cfg.Port),
		zap.String("bucket", cfg.BucketName),
	)

	client, err := minio.New(cfg.Host+":"+cfg.Port, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.User, cfg.Password, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to MinIO: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("checking bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket: %w", err)
		}
		logger.Info("Successfully created bucket")
	} else {
		logger.Info("Bucket already exists")
	}

	return &minioStorage{
		client: client,
		bucket: cfg.BucketName,
		logger: logger,
	}, nil
}

// UploadBase64File implements object.Storage.UploadBase64File
func (m *minioStorage) UploadBase64File(ctx context.Context, filePathName string, base64Content string, fileMimeType string) error {
	decodedContent, err := base64.StdEncoding.DecodeString(base64Content)
	if err != nil {
		return err
	}
	size := int64(len(decodedContent))

	// Retry loop with a fresh reader on each attempt (readers can only be
	// read once).
	for attempt := 1; attempt <= 3; attempt++ {
		contentReader := bytes.NewReader(decodedContent)
		_, err = m.client.PutObject(ctx, m.bucket, filePathName, contentReader, size,
			minio.PutObjectOptions{ContentType: fileMimeType})
		if err == nil {
			return nil
		}
		m.logger.Warn("Failed to upload file to MinIO, retrying",
			zap.String("filePathName", filePathName), zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return fmt.Errorf("uploading file to MinIO after 3 attempts: %w", err)
}

// DeleteFile removes one blob. MinIO treats removing a missing object as a
// success, which is exactly the idempotence the cascades need.
func (m *minioStorage) DeleteFile(ctx context.Context, filePathName string) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		err = m.client.RemoveObject(ctx, m.bucket, filePathName, minio.RemoveObjectOptions{})
		if err == nil {
			return nil
		}
		m.logger.Warn("Failed to delete file from MinIO, retrying",
			zap.String("filePathName", filePathName), zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return fmt.Errorf("deleting file from MinIO after 3 attempts: %w", err)
}

// DeleteFiles removes a batch of blobs with a single RemoveObjects call and
// returns how many were confirmed deleted.
func (m *minioStorage) DeleteFiles(ctx context.Context, filePathNames []string) (int64, error) {
	if len(filePathNames) == 0 {
		return 0, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(filePathNames))
	for _, path := range filePathNames {
		objectsCh <- minio.ObjectInfo{Key: path}
	}
	close(objectsCh)

	failed := map[string]error{}
	for removeErr := range m.client.RemoveObjects(ctx, m.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if removeErr.Err != nil {
			failed[removeErr.ObjectName] = removeErr.Err
			m.logger.Error("Failed to delete file in batch removal",
				zap.String("filePathName", removeErr.ObjectName), zap.Error(removeErr.Err))
		}
	}

	deleted := int64(len(filePathNames) - len(failed))
	if len(failed) > 0 {
		return deleted, fmt.Errorf("deleting %d of %d files from MinIO", len(failed), len(filePathNames))
	}
	return deleted, nil
}
