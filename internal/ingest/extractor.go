package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Extractor turns a version's file reference into plain text.
type Extractor interface {
	Extract(ctx context.Context, fileRef string) (string, error)
}

const maxExtractBytes = 10 << 20

// HTTPExtractor fetches file references over HTTP. Non-URL references
// are treated as inline text, which keeps tests and local imports
// simple.
type HTTPExtractor struct {
	client *http.Client
}

func NewHTTPExtractor() *HTTPExtractor {
	return &HTTPExtractor{
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *HTTPExtractor) Extract(ctx context.Context, fileRef string) (string, error) {
	if !strings.HasPrefix(fileRef, "http://") && !strings.HasPrefix(fileRef, "https://") {
		return fileRef, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileRef, nil)
	if err != nil {
		return "", err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", fileRef, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxExtractBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
