package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

type S3Options struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Client serves samples stored as objects under Prefix in a MinIO/S3 bucket.
type Client struct {
	s3     *s3.Client
	bucket string
	prefix string
}

func New(ctx context.Context, opts S3Options) (*Client, error) {
	endpoint := opts.Endpoint
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: endpoint, HostnameImmutable: true}, nil
	})
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey,
			opts.SecretKey,
			"")),
		config.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}
	return &Client{s3: s3.NewFromConfig(cfg), bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (c *Client) key(sha256 string) string {
	return c.prefix + strings.ToLower(sha256)
}

// Ref formats the object location of a sample for logs.
func (c *Client) Ref(sha256 string) string {
	return fmt.Sprintf("s3://%s/%s", c.bucket, c.key(sha256))
}

func (c *Client) Open(ctx context.Context, sha256 string) (io.ReadCloser, error) {
	if err := checkHash(sha256); err != nil {
		return nil, err
	}
	key := c.key(sha256)
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	})
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, c.Ref(sha256))
		}
		return nil, fmt.Errorf("get %s: %w", c.Ref(sha256), err)
	}
	return out.Body, nil
}

func isMissing(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *smithyhttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
