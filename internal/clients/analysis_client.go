/**
 * Synchronous Analysis Client
 *
 * Calls the non-streaming analysis endpoint: one request with the menu image
 * and user context, one complete verdict in the response. Interpretation of
 * the response (warnings, overall status, domain failures) belongs to the
 * coordinator in internal/analysis; this client only moves bytes.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/menulens/menuscan-worker/internal/logging"
	"github.com/menulens/menuscan-worker/internal/scanerr"
)

// AnalysisClient handles communication with the synchronous analysis endpoint.
type AnalysisClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// AnalyzeRequest is the synchronous analysis payload.
type AnalyzeRequest struct {
	Image       string      `json:"image"` // Base64 encoded image
	Language    string      `json:"language"`
	DeviceInfo  DeviceInfo  `json:"device_info"`
	UserContext UserContext `json:"user_context"`
}

// DeviceInfo identifies the submitting client.
type DeviceInfo struct {
	Platform   string `json:"platform"`
	AppVersion string `json:"app_version,omitempty"`
}

// UserContext carries the caller's allergy and diet codes.
type UserContext struct {
	Allergies []string `json:"allergies"`
	Diets     []string `json:"diets"`
}

// AnalyzeResponse is the server's complete verdict.
type AnalyzeResponse struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message,omitempty"`
	OverallStatus string          `json:"overall_status,omitempty"`
	Results       []AnalyzeResult `json:"results,omitempty"`
}

// AnalyzeResult is one analyzed menu item.
type AnalyzeResult struct {
	ID             string   `json:"id"`
	OriginalName   string   `json:"original_name"`
	TranslatedName string   `json:"translated_name"`
	SafetyStatus   string   `json:"safety_status"`
	Reason         string   `json:"reason,omitempty"`
	Ingredients    []string `json:"ingredients,omitempty"`
}

// NewAnalysisClient creates a new analysis client. No client-level timeout is
// set; the coordinator owns the deadline via context.
func NewAnalysisClient(baseURL string) *AnalysisClient {
	return &AnalysisClient{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     logging.NewLogger("AnalysisClient"),
	}
}

// Analyze submits one analysis request. authToken may be empty for
// unauthenticated submissions.
func (c *AnalysisClient) Analyze(ctx context.Context, req *AnalyzeRequest, authToken string) (*AnalyzeResponse, error) {
	endpoint := fmt.Sprintf("%s/api/analyze", c.baseURL)

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
	if authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, scanerr.NewNetworkFailed(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, scanerr.NewNetworkFailed(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, scanerr.NewServerFailed(resp.StatusCode,
			fmt.Errorf("analysis endpoint: %s", string(body)))
	}

	var analyzeResp AnalyzeResponse
	if err := json.Unmarshal(body, &analyzeResp); err != nil {
		return nil, scanerr.NewServerFailed(resp.StatusCode,
			fmt.Errorf("failed to parse response: %w", err))
	}

	c.logger.Info("analysis response received",
		"success", analyzeResp.Success,
		"overallStatus", analyzeResp.OverallStatus,
		"results", len(analyzeResp.Results))

	return &analyzeResp, nil
}
