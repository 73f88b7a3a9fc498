package labels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/menta2k/boxlabel/pkg/types"
)

// HTTPStore talks to a label backend over REST:
//
//	GET {base}/api/v1/datasets/{id}/labels?image={path}
//	PUT {base}/api/v1/datasets/{id}/labels?image={path}   {"boxes": [...]}
type HTTPStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPStore creates a client for the backend at baseURL
func NewHTTPStore(baseURL, token string, timeout time.Duration) *HTTPStore {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the backend address without a trailing slash
func (s *HTTPStore) BaseURL() string {
	return s.baseURL
}

// GetLabels fetches an image's label set
func (s *HTTPStore) GetLabels(ctx context.Context, datasetID, imagePath string) (*types.LabelSet, error) {
	body, err := s.do(ctx, http.MethodGet, s.labelsURL(datasetID, imagePath), nil)
	if err != nil {
		return nil, err
	}

	var set types.LabelSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}
	if set.Boxes == nil {
		set.Boxes = []types.Box{}
	}
	return &set, nil
}

// SaveLabels replaces an image's boxes
func (s *HTTPStore) SaveLabels(ctx context.Context, datasetID, imagePath string, boxes []types.Box) error {
	if boxes == nil {
		boxes = []types.Box{}
	}
	payload, err := json.Marshal(savePayload{Boxes: boxes})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	_, err = s.do(ctx, http.MethodPut, s.labelsURL(datasetID, imagePath), payload)
	return err
}

// ListImages fetches the dataset's image paths
func (s *HTTPStore) ListImages(ctx context.Context, datasetID string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/datasets/%s/images", s.baseURL, url.PathEscape(datasetID))
	body, err := s.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Images []string `json:"images"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse image list: %w", err)
	}
	return resp.Images, nil
}

func (s *HTTPStore) labelsURL(datasetID, imagePath string) string {
	q := url.Values{}
	q.Set("image", imagePath)
	return fmt.Sprintf("%s/api/v1/datasets/%s/labels?%s", s.baseURL, url.PathEscape(datasetID), q.Encode())
}

func (s *HTTPStore) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, errorMessage(body))
	}
	return body, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
