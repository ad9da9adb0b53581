package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store persists blobs to a configured bucket, grounded on the teacher's
// s3Uploader (internal/worker/image_handler.go): the same LoadDefaultConfig
// + custom endpoint resolver dance for S3-compatible stores, generalized
// from image bytes to arbitrary proof artifacts.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config collects the inputs required to construct an S3Store.
type S3Config struct {
	Bucket     string
	Region     string
	Endpoint   string
	PathStyle  bool
	KeyPrefix  string
}

// NewS3Store builds a client from cfg using the AWS SDK's default
// credential chain, optionally pointed at a custom (S3-compatible)
// endpoint.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: cfg.PathStyle,
					SigningRegion:     cfg.Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
	})
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.KeyPrefix}, nil
}

func (s *S3Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte) (string, error) {
	full := s.fullKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return "", fmt.Errorf("put artifact: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, full), nil
}

func (s *S3Store) Get(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func parseS3Ref(ref string) (bucket, key string, err error) {
	const prefix = "s3://"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return "", "", fmt.Errorf("invalid s3 ref: %q", ref)
	}
	rest := ref[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("invalid s3 ref: %q", ref)
}
