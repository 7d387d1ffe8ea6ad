package kv

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync/atomic"

	"github.com/kuitang/notekeep/internal/s3client"
)

const s3ContentType = "application/json; charset=utf-8"

// S3 stores each key as one object under a prefix of a bucket.
type S3 struct {
	client *s3client.Client
	prefix string
	closed atomic.Bool
}

// NewS3 creates an object-storage backed store. prefix may be empty.
func NewS3(client *s3client.Client, prefix string) *S3 {
	return &S3{client: client, prefix: strings.Trim(prefix, "/")}
}

func (s *S3) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Get implements Store.
func (s *S3) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	if s.closed.Load() {
		return "", false, ErrClosed
	}
	data, err := s.client.GetObject(ctx, s.objectKey(key))
	if errors.Is(err, s3client.ErrObjectNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Set implements Store.
func (s *S3) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.PutObject(ctx, s.objectKey(key), []byte(value), s3ContentType)
}

// Remove implements Store.
func (s *S3) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.DeleteObject(ctx, s.objectKey(key))
}

// Close implements Store. The underlying HTTP client needs no teardown.
func (s *S3) Close() error {
	s.closed.Store(true)
	return nil
}
