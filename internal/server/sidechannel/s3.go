package sidechannel

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
)

// putObjectAPI is the slice of *s3.Client the archive sink needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// S3Config locates the archive bucket.
type S3Config struct {
	User     string
	Password string
	Bucket   string
	Region   string
	Endpoint string
}

// S3Sink archives every task as one JSON object.
type S3Sink struct {
	client putObjectAPI
	bucket string
}

// NewS3Sink builds an S3 (or MinIO) client from static credentials.
func NewS3Sink(ctx context.Context, c S3Config) (*S3Sink, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.User, c.Password, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Sink{client: client, bucket: c.Bucket}, nil
}

func (s *S3Sink) Name() string { return "archive" }

// ObjectKey places t under its application date so archives list in order.
func ObjectKey(t Task) string {
	d := t.AppliedAt.UTC()
	return fmt.Sprintf("ops/%04d/%02d/%02d/%s.json", d.Year(), d.Month(), d.Day(), t.Op.OpID)
}

func (s *S3Sink) Send(ctx context.Context, t Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return Permanent(fmt.Errorf("encode task: %w", err))
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(ObjectKey(t)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", ObjectKey(t), err)
	}
	return nil
}
