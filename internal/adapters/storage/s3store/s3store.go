// Package s3store publishes renders to an S3 compatible bucket and hands out
// presigned GET URLs for them.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"reelrender/internal/ports"
)

type Client struct {
	api     *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

// NewClient stores objects under prefix in bucket. Keys handed back to
// callers never include the prefix.
func NewClient(api *s3.Client, bucket, prefix string) *Client {
	return &Client{
		api:     api,
		presign: s3.NewPresignClient(api),
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
	}
}

func (c *Client) Provider() string { return "s3" }

func (c *Client) key(objectKey string) (string, error) {
	k := strings.TrimSpace(objectKey)
	if k == "" || strings.Contains(k, "..") || strings.HasPrefix(k, "/") {
		return "", fmt.Errorf("invalid object key %q", objectKey)
	}
	if c.prefix == "" {
		return k, nil
	}
	return path.Join(c.prefix, k), nil
}

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	key, err := c.key(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   in.Reader,
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}
	if in.Size > 0 {
		input.ContentLength = aws.Int64(in.Size)
	}
	if _, err := c.api.PutObject(ctx, input); err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("s3 upload failed: %w", err)
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, string, int64, error) {
	key, err := c.key(objectKey)
	if err != nil {
		return nil, "", 0, ports.ErrObjectNotFound
	}
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", 0, mapErr(err)
	}
	return out.Body, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	key, err := c.key(objectKey)
	if err != nil {
		return ports.ErrObjectNotFound
	}
	_, err = c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return mapErr(err)
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	return err
}

func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	key, err := c.key(objectKey)
	if err != nil {
		return ports.SignedURLOutput{}, err
	}
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return ports.SignedURLOutput{}, fmt.Errorf("failed to presign: %w", err)
	}
	return ports.SignedURLOutput{URL: req.URL, ExpiresAt: time.Now().UTC().Add(expiresIn)}, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return ports.ErrObjectNotFound
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
		return ports.ErrObjectNotFound
	}
	return err
}
