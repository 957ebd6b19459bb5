/**
 * Vision OCR Client
 *
 * Calls the remote vision service to extract menu text from an image. The
 * service returns word-level tokens with confidence and bounding boxes; the
 * worker treats it as an opaque collaborator; retry and model selection
 * policy live in internal/ocr, not here.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/menulens/menuscan-worker/internal/logging"
	"github.com/menulens/menuscan-worker/internal/pipeline"
)

// VisionClient handles communication with the vision OCR service.
type VisionClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// VisionOCRRequest represents a request to extract text from an image.
type VisionOCRRequest struct {
	Image  string `json:"image"`  // Base64 encoded image
	Format string `json:"format"` // "base64"
	Locale string `json:"locale,omitempty"`
}

// VisionOCRResponse represents the response from the vision endpoint.
type VisionOCRResponse struct {
	Success bool          `json:"success"`
	Data    VisionOCRData `json:"data"`
	Message string        `json:"message"`
}

// VisionOCRData contains the extracted tokens and metadata.
type VisionOCRData struct {
	Tokens         []VisionToken `json:"tokens"`
	Confidence     float64       `json:"confidence"`
	ModelUsed      string        `json:"modelUsed"`
	ProcessingTime int64         `json:"processingTime"` // milliseconds
}

// VisionToken is one detected text fragment on the wire.
type VisionToken struct {
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	BoundingBox struct {
		X      int `json:"x"`
		Y      int `json:"y"`
		Width  int `json:"w"`
		Height int `json:"h"`
	} `json:"boundingBox"`
}

// NewVisionClient creates a new vision OCR client.
func NewVisionClient(baseURL string) *VisionClient {
	return &VisionClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // vision round trips are long
		},
		logger: logging.NewLogger("VisionClient"),
	}
}

// ExtractTokens extracts menu tokens from image bytes.
func (c *VisionClient) ExtractTokens(ctx context.Context, imageData []byte, locale string) ([]pipeline.Token, error) {
	req := &VisionOCRRequest{
		Image:  base64.StdEncoding.EncodeToString(imageData),
		Format: "base64",
		Locale: locale,
	}

	c.logger.Debug("requesting OCR from vision service",
		"imageBytes", len(imageData),
		"locale", locale)

	endpoint := fmt.Sprintf("%s/api/vision/extract-text", c.baseURL)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "menuscan-worker")
	httpReq.Header.Set("X-Request-ID", fmt.Sprintf("ocr-%d", time.Now().UnixNano()))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to vision service failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision service returned status %d: %s", resp.StatusCode, string(body))
	}

	var ocrResp VisionOCRResponse
	if err := json.Unmarshal(body, &ocrResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !ocrResp.Success {
		return nil, fmt.Errorf("vision service operation failed: %s", ocrResp.Message)
	}

	tokens := make([]pipeline.Token, 0, len(ocrResp.Data.Tokens))
	for _, t := range ocrResp.Data.Tokens {
		tokens = append(tokens, pipeline.Token{
			Text:       t.Text,
			Confidence: t.Confidence,
			Box: pipeline.BoundingBox{
				X:      t.BoundingBox.X,
				Y:      t.BoundingBox.Y,
				Width:  t.BoundingBox.Width,
				Height: t.BoundingBox.Height,
			},
		})
	}

	c.logger.Info("OCR complete",
		"modelUsed", ocrResp.Data.ModelUsed,
		"confidence", ocrResp.Data.Confidence,
		"tokens", len(tokens),
		"processingTime", ocrResp.Data.ProcessingTime)

	return tokens, nil
}

// HealthCheck verifies the vision service is available.
func (c *VisionClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/api/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
