package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kamilpajak/commentguard/pkg/models"
)

// LocalFetcher runs scans in-process.
type LocalFetcher struct {
	Scanner *Scanner
}

// FetchScan calls the scanner directly.
func (f *LocalFetcher) FetchScan(ctx context.Context, p models.ScanPayload) (*models.ScanResponse, error) {
	return f.Scanner.Scan(ctx, p)
}

// HTTPFetcher calls a remote scan endpoint with a bearer token.
type HTTPFetcher struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewHTTPFetcher creates a fetcher for the server at baseURL.
func NewHTTPFetcher(baseURL, token string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// FetchScan posts the payload to /api/scan-comments.
func (f *HTTPFetcher) FetchScan(ctx context.Context, p models.ScanPayload) (*models.ScanResponse, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/api/scan-comments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scan request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("scan API error (%d): %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("scan API error (%d): %s", resp.StatusCode, string(data))
	}

	var out models.ScanResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse scan response: %w", err)
	}
	return &out, nil
}
