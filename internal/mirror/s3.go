package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"cs-go/internal/config"
	"cs-go/internal/cs"
)

// Uploader is the part of manager.Uploader the mirror uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// ObjectGetter is the part of s3.Client the mirror uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Mirror replicates artifacts to an S3 bucket under a key prefix.
// Large artifacts are uploaded in parts by the transfer manager.
type S3Mirror struct {
	bucket   string
	prefix   string
	uploader Uploader
	getter   ObjectGetter
}

// NewS3Mirror builds an S3 client from cfg. Static credentials are used
// when configured; otherwise the default AWS credential chain applies.
func NewS3Mirror(ctx context.Context, cfg config.MirrorConfig) (*S3Mirror, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3MirrorWithClient(cfg.S3Bucket, cfg.S3Prefix, manager.NewUploader(client), client), nil
}

// NewS3MirrorWithClient creates a mirror on preconfigured clients.
func NewS3MirrorWithClient(bucket, prefix string, uploader Uploader, getter ObjectGetter) *S3Mirror {
	return &S3Mirror{bucket: bucket, prefix: prefix, uploader: uploader, getter: getter}
}

func (m *S3Mirror) objectKey(key string) string {
	if m.prefix == "" {
		return key
	}
	return path.Join(m.prefix, key)
}

func (m *S3Mirror) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	counter := &countingReader{r: r}
	input := &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.objectKey(key)),
		Body:   counter,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := m.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", m.bucket, m.objectKey(key), err)
	}
	if size >= 0 && counter.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counter.n)
	}
	return nil
}

func (m *S3Mirror) Get(ctx context.Context, key string, w io.Writer) error {
	out, err := m.getter.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("fetching s3://%s/%s: %w", m.bucket, m.objectKey(key), err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading s3://%s/%s: %w", m.bucket, m.objectKey(key), err)
	}
	return nil
}

var _ cs.Mirror = (*S3Mirror)(nil)
