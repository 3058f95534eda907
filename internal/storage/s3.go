package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"triageapp/internal/config"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
)

// S3Store keeps media in an S3 (or S3-compatible) bucket
type S3Store struct {
	client        *s3.Client
	presign       *s3.PresignClient
	bucket        string
	publicBaseURL string
}

// NewS3Store loads AWS credentials from the environment or shared config and connects to the bucket
func NewS3Store(ctx context.Context, cfg config.S3StorageConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "storage.s3.bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	publicBase := cfg.PublicBaseURL
	if publicBase == "" {
		publicBase = defaultS3PublicBase(cfg)
	}

	return &S3Store{
		client:        client,
		presign:       s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		publicBaseURL: publicBase,
	}, nil
}

func defaultS3PublicBase(cfg config.S3StorageConfig) string {
	if cfg.Endpoint != "" {
		return joinURL(cfg.Endpoint, cfg.Bucket)
	}
	if cfg.Region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.Bucket)
}

// Put uploads the blob with PutObject
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "s3_put",
		attribute.String("storage.key", key),
		attribute.Int64("storage.size", size),
	)
	defer observability.FinishSpan(span, &err)

	if err := ValidateKey(key); err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrUploadFailed, "s3 put %s: %v", key, err)
	}
	return nil
}

// PublicURL returns the object URL under the configured public base
func (s *S3Store) PublicURL(key string) string {
	return joinURL(s.publicBaseURL, key)
}

// PresignPut signs a PutObject request for direct browser uploads
func (s *S3Store) PresignPut(ctx context.Context, key, contentType string, size int64, expiry time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrUploadFailed, "presign %s: %v", key, err)
	}
	return req.URL, nil
}

// Driver returns "s3"
func (s *S3Store) Driver() string { return DriverS3 }
