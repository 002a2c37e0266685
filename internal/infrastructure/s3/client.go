package s3infra

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SnapshotStore keeps doorbell camera snapshots.
type SnapshotStore struct {
	client *s3.Client
	bucket string
	ttl    time.Duration
}

// NewClient creates an S3 client. When endpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, endpointURL string) *s3.Client {
	var opts []func(*s3.Options)
	if endpointURL != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, opts...)
}

// NewSnapshotStore returns a store writing to bucket. Links it hands out stay
// valid for ttl.
func NewSnapshotStore(client *s3.Client, bucket string, ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SnapshotStore{client: client, bucket: bucket, ttl: ttl}
}

// PutSnapshot uploads image under a key derived from the device and instant
// and returns the key with a presigned GET URL for it.
func (s *SnapshotStore) PutSnapshot(ctx context.Context, deviceID string, at time.Time, image []byte) (key, url string, err error) {
	contentType := detectContentType(image)
	key = SnapshotKey(deviceID, at, contentType)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(image),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", fmt.Errorf("s3 put object: %w", err)
	}
	url, err = s.PresignedURL(ctx, key)
	if err != nil {
		return key, "", err
	}
	return key, url, nil
}

// PresignedURL generates a time-limited presigned GET URL for the given key.
func (s *SnapshotStore) PresignedURL(ctx context.Context, key string) (string, error) {
	presigner := s3.NewPresignClient(s.client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}

// SnapshotKey lays snapshots out per device and day.
func SnapshotKey(deviceID string, at time.Time, contentType string) string {
	at = at.UTC()
	name := fmt.Sprintf("%d%s", at.UnixNano(), extension(contentType))
	return path.Join("snapshots", sanitize(deviceID), at.Format("2006/01/02"), name)
}

func detectContentType(image []byte) string {
	ct := http.DetectContentType(image)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
