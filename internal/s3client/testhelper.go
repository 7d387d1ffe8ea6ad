package s3client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"golang.org/x/time/rate"
)

// TestClient creates an S3 client backed by gofakes3 for testing.
// The returned client uses an in-memory S3 backend and a test HTTP server.
// The test server is automatically cleaned up when the test completes.
func TestClient(t testing.TB, bucketName string) *Client {
	return TestClientWithLimiter(t, bucketName, nil)
}

// TestClientWithLimiter is TestClient with a request limiter attached.
func TestClientWithLimiter(t testing.TB, bucketName string, limiter *rate.Limiter) *Client {
	t.Helper()
	return NewFromS3Client(newTestS3(t, TestServer(t, bucketName)), bucketName, limiter)
}

// TestServer starts a gofakes3 server with bucketName already created and
// returns its endpoint URL. Use it with path-style addressing and any static
// credentials.
func TestServer(t testing.TB, bucketName string) string {
	t.Helper()

	backend := s3mem.New()
	faker := gofakes3.New(backend)

	ts := httptest.NewServer(faker.Server())
	t.Cleanup(func() {
		ts.Close()
	})

	_, err := newTestS3(t, ts.URL).CreateBucket(context.Background(), &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}
	return ts.URL
}

func newTestS3(t testing.TB, endpoint string) *s3.Client {
	t.Helper()
	sdkConfig, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		),
	)
	if err != nil {
		t.Fatalf("failed to load AWS config: %v", err)
	}

	return s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true // Required for gofakes3
	})
}
