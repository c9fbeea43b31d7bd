package upload

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

const (
	DefaultBaseURL = "https://storage.googleapis.com"

	// DefaultChunkSize is the resumable upload chunk for chunked submissions.
	DefaultChunkSize = 256 * 1024
)

// GCSBackend puts submissions into a Google Cloud Storage bucket. The
// bucket is expected to be publicly readable.
type GCSBackend struct {
	client    *storage.Client
	bucket    string
	baseURL   string
	chunkSize int
}

func NewGCSBackend(client *storage.Client, bucket, baseURL string) (*GCSBackend, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("bucket is empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &GCSBackend{
		client:    client,
		bucket:    bucket,
		baseURL:   strings.TrimRight(baseURL, "/"),
		chunkSize: DefaultChunkSize,
	}, nil
}

func (b *GCSBackend) Put(ctx context.Context, sub Submission) (string, error) {
	if len(sub.Data) == 0 {
		return "", ErrEmptySubmission
	}
	object := uuid.NewString()
	w := b.client.Bucket(b.bucket).Object(object).NewWriter(ctx)
	b.configureWriter(w, sub)
	if _, err := w.Write(sub.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %s: %w", object, err)
	}
	return b.objectURI(object), nil
}

func (b *GCSBackend) configureWriter(w *storage.Writer, sub Submission) {
	w.ContentType = sub.ContentType
	if len(sub.Tags) != 0 {
		w.Metadata = make(map[string]string, len(sub.Tags))
		for k, v := range sub.Tags {
			w.Metadata[k] = v
		}
	}
	if !sub.Chunked {
		// Single request upload.
		w.ChunkSize = 0
		return
	}
	w.ChunkSize = b.chunkSize
	if sub.Progress != nil {
		total := int64(len(sub.Data))
		w.ProgressFunc = func(sent int64) {
			sub.Progress(sent, total)
		}
	}
}

func (b *GCSBackend) objectURI(object string) string {
	return fmt.Sprintf("%s/%s/%s", b.baseURL, b.bucket, url.PathEscape(object))
}
