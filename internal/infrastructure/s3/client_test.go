package s3infra

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectContentType(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0}
	png := []byte("\x89PNG\r\n\x1a\n0000")

	assert.Equal(t, "image/jpeg", detectContentType(jpeg))
	assert.Equal(t, "image/png", detectContentType(png))
	assert.Equal(t, "text/plain", detectContentType([]byte("hello")))
}

func TestSnapshotKey(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 8, time.FixedZone("x", -3*3600))
	key := SnapshotKey("cam/../front door", at, "image/jpeg")

	assert.True(t, strings.HasPrefix(key, "snapshots/cam____front_door/2026/03/04/"), key)
	assert.True(t, strings.HasSuffix(key, ".jpg"), key)
	assert.Equal(t, ".bin", extension("text/plain"))
}

func TestPresignedURL(t *testing.T) {
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
	}
	store := NewSnapshotStore(NewClient(cfg, "http://localhost:4566"), "snaps", time.Hour)

	url, err := store.PresignedURL(context.Background(), "snapshots/d1/a.jpg")
	require.NoError(t, err)
	assert.Contains(t, url, "http://localhost:4566/snaps/snapshots/d1/a.jpg")
	assert.Contains(t, url, "X-Amz-Expires=3600")
}
