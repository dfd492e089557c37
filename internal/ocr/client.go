package ocr

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

// HTTPClient talks to a remote OCR service over HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type recognizeRequest struct {
	ImageB64            string  `json:"image_b64"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

type recognizeResponse struct {
	Boxes []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		BBox       [4]int  `json:"bbox"`
	} `json:"boxes"`
}

// Recognize sends the image and returns recognized boxes in reading order.
func (c *HTTPClient) Recognize(ctx context.Context, png []byte, confidenceThreshold float64) ([]Box, error) {
	body, err := json.Marshal(recognizeRequest{
		ImageB64:            base64.StdEncoding.EncodeToString(png),
		ConfidenceThreshold: confidenceThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ocr request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ocr status %d: %s", resp.StatusCode, string(respBody))
	}

	var rr recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decode ocr response: %w", err)
	}

	boxes := make([]Box, 0, len(rr.Boxes))
	for _, b := range rr.Boxes {
		boxes = append(boxes, Box{
			Text:       b.Text,
			Confidence: b.Confidence,
			X0:         b.BBox[0],
			Y0:         b.BBox[1],
			X1:         b.BBox[2],
			Y1:         b.BBox[3],
		})
	}
	boxes = FilterBoxes(boxes, confidenceThreshold)
	SortBoxes(boxes)
	return boxes, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() {
	c.httpClient.CloseIdleConnections()
}
