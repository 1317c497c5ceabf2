package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	cfg "github.com/PascheK/PascheK-ChatBox/internal/config"
	"github.com/PascheK/PascheK-ChatBox/internal/core"
)

// S3Client implements core.ObjectStore against S3 or any S3-compatible
// store (MinIO, ...). Every call carries its own deadline so a slow or
// unreachable endpoint surfaces as a failure instead of a hang.
type S3Client struct {
	client    *s3.Client
	region    string
	publicURL string
	logger    *slog.Logger
}

var _ core.ObjectStore = (*S3Client)(nil)

func NewS3Client(ctx context.Context, conf *cfg.Config, logger *slog.Logger) (*S3Client, error) {
	if conf.AwsAccessKey == "" || conf.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if conf.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(conf.AwsRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AwsAccessKey, conf.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Client{
		client:    s3.NewFromConfig(awsCfg),
		region:    conf.AwsRegion,
		publicURL: strings.TrimRight(conf.StoragePublicURL, "/"),
		logger:    logger.With("component", "objectstore"),
	}, nil
}

func (c *S3Client) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	uploader := manager.NewUploader(c.client)

	putCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := uploader.Upload(putCtx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %w", core.ErrStorage, bucket, key, err)
	}
	c.logger.Debug("object stored", "bucket", bucket, "key", key, "bytes", len(data))
	return nil
}

func (c *S3Client) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	getCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := c.client.GetObject(getCtx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s/%s: %w", core.ErrStorage, bucket, key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s/%s: %w", core.ErrStorage, bucket, key, err)
	}
	return body, nil
}

func (c *S3Client) Delete(ctx context.Context, bucket, key string) error {
	delCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.client.DeleteObject(delCtx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %w", core.ErrStorage, bucket, key, err)
	}
	return nil
}

func (c *S3Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	headCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.client.HeadObject(headCtx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: head %s/%s: %w", core.ErrStorage, bucket, key, err)
	}
	return true, nil
}

// PublicURL builds the retrieval URL: {base}/{bucket}/{key} when a public
// base is configured (MinIO style), otherwise the virtual-hosted S3 form.
func (c *S3Client) PublicURL(bucket, key string) string {
	if c.publicURL != "" {
		return fmt.Sprintf("%s/%s/%s", c.publicURL, bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.region, key)
}
