package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the S3 backend. Endpoint is optional and selects an
// S3-compatible service with path-style addressing. Without static keys the
// default AWS credential chain is used.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3BlobStore stores blobs as S3 objects. Metadata travels as object
// user metadata.
type S3BlobStore struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3BlobStore wraps an S3 client.
func NewS3BlobStore(client S3API, bucket, prefix string) *S3BlobStore {
	return &S3BlobStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3BlobStore) key(id string) string { return s.prefix + id }

const (
	metaFileName  = "file-name"
	metaPatientID = "patient-id"
	metaCreatedBy = "created-by"
	metaSHA256    = "sha256"
	metaCreatedAt = "created-at"
)

// Upload puts the blob into the bucket.
func (s *S3BlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	key := s.key(meta.ID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(meta.Size),
		ContentType:   aws.String(meta.ContentType),
		Metadata: map[string]string{
			metaFileName:  meta.FileName,
			metaPatientID: meta.PatientID,
			metaCreatedBy: meta.CreatedBy,
			metaSHA256:    meta.Hash,
			metaCreatedAt: strconv.FormatInt(meta.CreatedAt.Unix(), 10),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put object: %w", err)
	}
	return &meta, nil
}

// Download streams the object body.
func (s *S3BlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	if err := validateKey(id); err != nil {
		return nil, nil, err
	}
	key := s.key(id)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("s3 get object: %w", err)
	}
	meta := metadataFromObject(id, out.Metadata, out.ContentType, out.ContentLength)
	return out.Body, meta, nil
}

// Delete removes the object. S3 deletes are idempotent, so a missing object
// is detected with a HEAD first.
func (s *S3BlobStore) Delete(ctx context.Context, id string) error {
	if _, err := s.GetMetadata(ctx, id); err != nil {
		return err
	}
	key := s.key(id)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// GetMetadata issues a HEAD request for the object.
func (s *S3BlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	if err := validateKey(id); err != nil {
		return nil, err
	}
	key := s.key(id)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("s3 head object: %w", err)
	}
	return metadataFromObject(id, out.Metadata, out.ContentType, out.ContentLength), nil
}

func metadataFromObject(id string, md map[string]string, contentType *string, length *int64) *BlobMetadata {
	meta := &BlobMetadata{
		ID:          id,
		FileName:    md[metaFileName],
		ContentType: aws.ToString(contentType),
		Size:        aws.ToInt64(length),
		PatientID:   md[metaPatientID],
		CreatedBy:   md[metaCreatedBy],
		Hash:        md[metaSHA256],
	}
	if ts, err := strconv.ParseInt(md[metaCreatedAt], 10, 64); err == nil {
		meta.CreatedAt = time.Unix(ts, 0).UTC()
	}
	return meta
}
