package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// FolderReports is the S3 prefix for consistency report objects.
const FolderReports = "consistency-reports"

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ReportsBucket        string
	PresignExpireMinutes int
}

// S3 archives sweep and scan reports and issues presigned download URLs.
type S3 struct {
	client    *s3.Client
	uploader  *manager.Uploader
	presigner *s3.PresignClient
	cfg       S3Config
	logger    *zap.Logger
}

// NewS3 creates an S3 client from static credentials (or the default chain
// when no key is configured).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3{
		client:    client,
		uploader:  manager.NewUploader(client),
		presigner: s3.NewPresignClient(client),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// ReportKey builds the object key for a report of the given kind, e.g.
// consistency-reports/drift_sweep/2026-08-28/<job-id>.json.
func ReportKey(kind, jobID string, at time.Time) string {
	return path.Join(FolderReports, kind, at.UTC().Format("2006-01-02"), jobID+".json")
}

// UploadReport uploads a JSON report body and returns its object key.
func (s *S3) UploadReport(ctx context.Context, key string, body []byte) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.ReportsBucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}
	s.logger.Info("report archived", zap.String("bucket", s.cfg.ReportsBucket), zap.String("key", key))
	return key, nil
}

// PresignDownload returns a time-limited download URL for an archived report.
func (s *S3) PresignDownload(ctx context.Context, key string) (string, error) {
	expire := time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
	if expire <= 0 {
		expire = 15 * time.Minute
	}
	out, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.ReportsBucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expire))
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return out.URL, nil
}
