package charts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/finchunk/finchunk/internal/chunks"
)

// ModelClient talks to a vision model service that describes chart images and
// digitizes their data series. Both operations are optional enrichment;
// callers treat errors as missing data.
type ModelClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewModelClient(baseURL, apiKey string, timeout time.Duration) *ModelClient {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &ModelClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chartRequest struct {
	ImageB64   string `json:"image_b64"`
	FigureType string `json:"figure_type,omitempty"`
	Caption    string `json:"caption,omitempty"`
}

type describeResponse struct {
	Description string `json:"description"`
}

type digitizeResponse struct {
	Data string `json:"data"`
}

// Describe returns a natural-language summary of the chart image.
func (c *ModelClient) Describe(ctx context.Context, png []byte, figureType chunks.FigureType, caption string) (string, error) {
	var resp describeResponse
	if err := c.post(ctx, "/describe", chartRequest{
		ImageB64:   base64.StdEncoding.EncodeToString(png),
		FigureType: string(figureType),
		Caption:    caption,
	}, &resp); err != nil {
		return "", err
	}
	return resp.Description, nil
}

// Digitize asks the model to read the chart's data points and returns the
// parsed series, or nil when the model produced nothing usable.
func (c *ModelClient) Digitize(ctx context.Context, png []byte, figureType chunks.FigureType) (*chunks.Series, error) {
	var resp digitizeResponse
	if err := c.post(ctx, "/digitize", chartRequest{
		ImageB64:   base64.StdEncoding.EncodeToString(png),
		FigureType: string(figureType),
	}, &resp); err != nil {
		return nil, err
	}
	return ParseLinearized(resp.Data), nil
}

func (c *ModelClient) post(ctx context.Context, path string, req, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal chart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chart model request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("chart model status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode chart model response: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (c *ModelClient) Close() {
	c.httpClient.CloseIdleConnections()
}
