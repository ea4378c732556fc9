package media

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Seams for tests: the AWS presign calls are reachable through function
// vars so error paths can be exercised without live storage.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	presignDeleteObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignDeleteObject(ctx, in, optFns...)
	}
)

// S3Signer signs single-object operations against an S3-compatible store.
type S3Signer struct {
	presign *s3.PresignClient
	bucket  string
	now     func() time.Time
}

// NewS3Signer builds the underlying S3 client once; per-request work is
// signing only.
func NewS3Signer(ctx context.Context, accessKeyID, secretAccessKey, bucket, region, baseEndpoint string) (*S3Signer, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, secretAccessKey, "",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if baseEndpoint != "" {
			o.BaseEndpoint = aws.String(baseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Signer{
		presign: newS3PresignClient(client),
		bucket:  bucket,
		now:     time.Now,
	}, nil
}

func (s *S3Signer) SignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (*PresignedOperation, error) {
	in := &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}
	if contentType != "" {
		in.ContentType = &contentType
	}

	req, err := presignPutObject(s.presign, ctx, in, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, err
	}
	return s.operation(req, ttl), nil
}

func (s *S3Signer) SignDownload(ctx context.Context, key string, ttl time.Duration) (*PresignedOperation, error) {
	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, err
	}
	return s.operation(req, ttl), nil
}

func (s *S3Signer) SignDelete(ctx context.Context, key string, ttl time.Duration) (*PresignedOperation, error) {
	req, err := presignDeleteObject(s.presign, ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, err
	}
	return s.operation(req, ttl), nil
}

func (s *S3Signer) operation(req *v4.PresignedHTTPRequest, ttl time.Duration) *PresignedOperation {
	return &PresignedOperation{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   flattenHeaders(req.SignedHeader),
		ExpiresAt: s.now().Add(ttl).Unix(),
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	return out
}
