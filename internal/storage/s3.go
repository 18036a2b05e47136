package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"aarambh-client/internal/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

type S3Storage struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

func NewS3Storage(cfg *config.Config) (*S3Storage, error) {
	s3Config := &aws.Config{
		Credentials:      credentials.NewStaticCredentials(cfg.Storage.S3.AccessKey, cfg.Storage.S3.SecretKey, ""),
		Region:           aws.String(cfg.Storage.S3.Region),
		DisableSSL:       aws.Bool(!cfg.Storage.S3.UseSSL),
		S3ForcePathStyle: aws.Bool(true),
	}
	if cfg.Storage.S3.Endpoint != "" {
		s3Config.Endpoint = aws.String(cfg.Storage.S3.Endpoint)
	}

	sess, err := session.NewSession(s3Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}

	client := s3.New(sess)
	return &S3Storage{
		client: client,
		// Files above PartSize go up as a multipart upload.
		uploader: s3manager.NewUploaderWithClient(client, func(u *s3manager.Uploader) {
			if cfg.Storage.S3.PartSize >= s3manager.MinUploadPartSize {
				u.PartSize = cfg.Storage.S3.PartSize
			}
		}),
		bucket: cfg.Storage.S3.Bucket,
	}, nil
}

func (s *S3Storage) Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	return out.Location, nil
}

// KeyOf strips the bucket from a path-style object location.
func (s *S3Storage) KeyOf(location string) (string, bool) {
	parsed, err := url.Parse(location)
	if err != nil {
		return "", false
	}
	p, err := url.PathUnescape(parsed.EscapedPath())
	if err != nil {
		return "", false
	}
	key, ok := strings.CutPrefix(p, "/"+s.bucket+"/")
	return key, ok && key != ""
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}
