package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 5, 123_000_000, time.FixedZone("CEST", 2*3600))

	assert.Equal(t, "snapshots/2024/05/01/073005.123.csv", ObjectKey("snapshots", at))
	assert.Equal(t, "snapshots/2024/05/01/073005.123.csv", ObjectKey("/snapshots/", at))
	assert.Equal(t, "2024/05/01/073005.123.csv", ObjectKey("", at))
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	_, err := New(Config{Bucket: "reviews"})
	assert.ErrorContains(t, err, "endpoint")

	_, err = New(Config{Endpoint: "localhost:9000"})
	assert.ErrorContains(t, err, "bucket")
}

func TestNewBuildsClient(t *testing.T) {
	s, err := New(Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "reviewdash-snapshots",
		Region:    "us-east-1",
		Prefix:    "/snapshots/",
	})

	require.NoError(t, err)
	assert.Equal(t, "snapshots", s.prefix)
	assert.Equal(t, "reviewdash-snapshots", s.bucket)
}
