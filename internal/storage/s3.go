package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"automatpos/backend/internal/config"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Disk works with AWS S3 and S3-compatible servers such as MinIO.
type S3Disk struct {
	client  objectPutter
	bucket  string
	prefix  string
	baseURL string
}

func NewS3(ctx context.Context, settings config.S3Settings) (*S3Disk, error) {
	if settings.Bucket == "" {
		return nil, fmt.Errorf("storage/s3: bucket is not configured")
	}
	region := settings.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(region)}
	if settings.AccessKey != "" && settings.SecretKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKey, settings.SecretKey, ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage/s3: load config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	baseURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", settings.Bucket, region)
	if settings.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(settings.Endpoint)
			o.UsePathStyle = true
		})
		baseURL = strings.TrimRight(settings.Endpoint, "/") + "/" + settings.Bucket
	}

	return newS3Disk(s3.NewFromConfig(cfg, clientOpts...), settings.Bucket, settings.Prefix, baseURL), nil
}

func newS3Disk(client objectPutter, bucket string, prefix string, baseURL string) *S3Disk {
	return &S3Disk{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (d *S3Disk) Put(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	objectKey := strings.TrimLeft(key, "/")
	if d.prefix != "" {
		objectKey = d.prefix + "/" + objectKey
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(content),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := d.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("storage/s3: put %s: %w", objectKey, err)
	}
	return objectKey, nil
}

func (d *S3Disk) URL(path string) string {
	if path == "" {
		return ""
	}
	return d.baseURL + "/" + strings.TrimLeft(path, "/")
}
