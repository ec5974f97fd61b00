// Package ingestion imports job postings from external feeds into the marketplace.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var (
	// ErrInvalidURL is returned when URL is malformed
	ErrInvalidURL = errors.New("invalid URL")
	// ErrHTTPRequestFailed is returned when HTTP request fails
	ErrHTTPRequestFailed = errors.New("HTTP request failed")
)

// maxFeedBytes caps how much of a feed is read.
const maxFeedBytes = 16 << 20

// Metadata describes a fetched feed document.
type Metadata struct {
	Location  string `json:"location"`
	Timestamp string `json:"timestamp"` // RFC3339 format
	Hash      string `json:"hash"`      // SHA256 hex digest
	Size      int    `json:"size"`
}

// newMetadata creates a Metadata instance with the current timestamp
func newMetadata(content []byte, location string) *Metadata {
	hash := sha256.Sum256(content)
	return &Metadata{
		Location:  location,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Hash:      hex.EncodeToString(hash[:]),
		Size:      len(content),
	}
}

// ReadFeed loads a feed document from a local path or an http(s) URL.
func ReadFeed(ctx context.Context, location string, client *http.Client) ([]byte, *Metadata, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return fetchFeed(ctx, location, client)
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read feed file %s: %w", location, err)
	}
	return data, newMetadata(data, location), nil
}

func fetchFeed(ctx context.Context, rawURL string, client *http.Client) ([]byte, *Metadata, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrHTTPRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("%w: status %d", ErrHTTPRequestFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrHTTPRequestFailed, err)
	}
	return data, newMetadata(data, rawURL), nil
}
