package faceclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MockEncoding is the enrollment reference returned in skip mode.
const MockEncoding = "mock-face-encoding"

// FaceQuality contains face quality metrics.
type FaceQuality struct {
	Score     float64 `json:"score"`
	Blur      float64 `json:"blur"`
	IsFrontal bool    `json:"is_frontal"`
}

// Image is either a hosted image URL or raw frame bytes.
type Image struct {
	URL   string
	Bytes []byte
}

func (img Image) payload(into map[string]any) {
	if img.URL != "" {
		into["image_url"] = img.URL
		return
	}
	into["image_base64"] = base64.StdEncoding.EncodeToString(img.Bytes)
}

// EnrollResult contains face enrollment response.
type EnrollResult struct {
	UserID        string       `json:"user_id"`
	Success       bool         `json:"success"`
	Encoding      string       `json:"encoding"`
	FacesDetected *int         `json:"faces_detected,omitempty"`
	Quality       *FaceQuality `json:"quality"`
	Message       string       `json:"message"`
}

// SearchMatch represents a face match from gallery search.
type SearchMatch struct {
	UserID     string  `json:"user_id"`
	Similarity float64 `json:"similarity"`
	Name       string  `json:"name,omitempty"`
}

// SearchResult contains 1:N search results.
type SearchResult struct {
	Matches       []SearchMatch `json:"matches"`
	FacesDetected int           `json:"faces_detected"`
}

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // Face processing can take time
		},
	}
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

// Enroll registers a face for userID into the recognition gallery.
func (c *Client) Enroll(ctx context.Context, userID, name string, img Image) (*EnrollResult, error) {
	if c.Skip {
		one := 1
		return &EnrollResult{
			UserID:        userID,
			Success:       true,
			Encoding:      MockEncoding,
			FacesDetected: &one,
			Quality:       &FaceQuality{Score: 0.85, IsFrontal: true},
			Message:       "Face enrolled (mock)",
		}, nil
	}

	payload := map[string]any{"user_id": userID}
	if name != "" {
		payload["name"] = name
	}
	img.payload(payload)

	var out EnrollResult
	if err := c.post(ctx, "/enroll", payload, &out); err != nil {
		return nil, err
	}
	if out.Encoding == "" {
		out.Encoding = out.UserID
	}
	return &out, nil
}

// Search performs 1:N identification of every face in img against the gallery.
func (c *Client) Search(ctx context.Context, img Image, topK int, threshold float64) (*SearchResult, error) {
	payload := map[string]any{"top_k": topK}
	if threshold > 0 {
		payload["threshold"] = threshold
	}
	img.payload(payload)

	var out SearchResult
	if err := c.post(ctx, "/search", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
