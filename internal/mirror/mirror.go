// Package mirror replicates stored uploads to an S3-compatible bucket.
package mirror

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/config"
	"github.com/guided-traffic/file-encryptor/internal/monitoring"
	"github.com/guided-traffic/file-encryptor/internal/preview"
	"github.com/guided-traffic/file-encryptor/internal/registry"
)

// uploadTimeout bounds a single replication
const uploadTimeout = 2 * time.Minute

// Uploader is the part of manager.Uploader the mirror needs
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Mirror copies every stored upload to the bucket in the background
type Mirror struct {
	bucket   string
	prefix   string
	uploader Uploader
	logger   *logrus.Entry
	wg       sync.WaitGroup
}

var _ registry.Observer = (*Mirror)(nil)

// New creates a mirror backed by an S3 client built from cfg
func New(ctx context.Context, cfg config.MirrorConfig, logger *logrus.Entry) (*Mirror, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithUploader(cfg, manager.NewUploader(client), logger), nil
}

// NewWithUploader creates a mirror around an existing uploader
func NewWithUploader(cfg config.MirrorConfig, uploader Uploader, logger *logrus.Entry) *Mirror {
	if logger == nil {
		logger = logrus.WithField("component", "upload-mirror")
	}
	return &Mirror{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		uploader: uploader,
		logger:   logger.WithField("bucket", cfg.Bucket),
	}
}

// Stored schedules the replication of one upload. Failures are logged and
// counted; the caller never sees them.
func (m *Mirror) Stored(ctx context.Context, record registry.FileRecord, localPath string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		upCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uploadTimeout)
		defer cancel()

		if err := m.upload(upCtx, record, localPath); err != nil {
			m.logger.WithError(err).WithField("path", record.Path).Warn("Failed to mirror upload")
			monitoring.RecordMirrorUpload("error")
			return
		}
		monitoring.RecordMirrorUpload("success")
	}()
}

func (m *Mirror) upload(ctx context.Context, record registry.FileRecord, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	key := m.prefix + record.Name
	_, err = m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(preview.MimeType(record.Name)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	m.logger.WithFields(logrus.Fields{
		"key":  key,
		"size": record.Size,
	}).Debug("Upload mirrored")
	return nil
}

// Wait blocks until all scheduled replications have finished
func (m *Mirror) Wait() {
	m.wg.Wait()
}
