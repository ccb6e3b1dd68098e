package documents

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/utils"
)

// AllowedContentTypes lists the identity document formats accepted at registration.
var AllowedContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// Kind names the slot a document fills on the user record.
type Kind string

const (
	KindIDCard Kind = "id-card"
	KindPhoto  Kind = "photo"
)

// Uploader stores identity documents and returns an opaque reference.
type Uploader interface {
	Upload(ctx context.Context, userID string, kind Kind, doc *cqrs.Document) (string, error)
	Delete(ctx context.Context, ref string) error
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Uploader writes documents to an S3 (or S3-compatible) bucket.
type S3Uploader struct {
	client s3API
	bucket string
}

// NewS3Uploader loads AWS credentials from the default chain. A non-empty
// endpoint points the client at an S3-compatible service such as MinIO.
func NewS3Uploader(ctx context.Context, bucket, region, endpoint string) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Uploader{client: client, bucket: bucket}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, userID string, kind Kind, doc *cqrs.Document) (string, error) {
	if !AllowedContentTypes[doc.ContentType] {
		return "", fmt.Errorf("unsupported content type %q", doc.ContentType)
	}
	key := objectKey(userID, kind, doc.Filename)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(doc.Data),
		ContentType:   aws.String(doc.ContentType),
		ContentLength: aws.Int64(int64(len(doc.Data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", kind, err)
	}
	return "s3://" + u.bucket + "/" + key, nil
}

func (u *S3Uploader) Delete(ctx context.Context, ref string) error {
	key, ok := strings.CutPrefix(ref, "s3://"+u.bucket+"/")
	if !ok {
		return fmt.Errorf("reference %q is not in bucket %s", ref, u.bucket)
	}
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

func objectKey(userID string, kind Kind, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join("users", userID, string(kind), utils.GenerateID()+ext)
}
