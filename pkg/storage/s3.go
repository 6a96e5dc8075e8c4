// Package storage provides the S3 email bucket operations: raw email
// retrieval, attachment storage and presigned download URLs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// FolderAttachments is the bucket prefix for stored attachments.
const FolderAttachments = "attachments"

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	EndpointURL          string
	EmailBucket          string
	PresignExpireMinutes int
}

// S3 wraps the email bucket.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client. Static credentials are used when provided;
// otherwise the default chain applies.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})
	logger.Info("S3 client ready", zap.String("region", cfg.Region), zap.String("bucket", cfg.EmailBucket))
	return &S3{client: client, uploader: uploader, cfg: cfg, logger: logger}, nil
}

// AttachmentKey returns the object key for an attachment:
// attachments/{message_id}/{filename}.
func AttachmentKey(messageID, filename string) string {
	return path.Join(FolderAttachments, messageID, path.Base(filename))
}

// GetEmail retrieves a raw email written by the inbound mail receiver.
func (s *S3) GetEmail(ctx context.Context, objectKey string) ([]byte, error) {
	s.logger.Info("retrieving email", zap.String("key", objectKey))
	return s.getObject(ctx, objectKey)
}

// GetAttachment retrieves a stored attachment.
func (s *S3) GetAttachment(ctx context.Context, key string) ([]byte, error) {
	return s.getObject(ctx, key)
}

func (s *S3) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.EmailBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("get object failed", zap.Error(err), zap.String("key", key))
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// StoreAttachment stores an attachment with server-side encryption and
// returns the stored key.
func (s *S3) StoreAttachment(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	s.logger.Info("storing attachment", zap.String("key", key), zap.Int("size", len(data)))
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.cfg.EmailBucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		s.logger.Error("store attachment failed", zap.Error(err), zap.String("key", key))
		return "", fmt.Errorf("store attachment: %w", err)
	}
	return key, nil
}

// PresignedDownloadURL returns a presigned GET URL for an object.
func (s *S3) PresignedDownloadURL(ctx context.Context, key string) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.EmailBucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.PresignExpire()
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}
