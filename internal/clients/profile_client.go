/**
 * Profile Client
 *
 * Fetches the caller's auth token and allergy/diet codes from the profile
 * service. Profile data is best-effort context for the analysis request:
 * every failure here degrades to "no profile", never to a failed scan.
 */

package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/menulens/menuscan-worker/internal/logging"
)

// ProfileClient handles communication with the user profile service.
type ProfileClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// Profile carries the user's dietary restriction codes.
type Profile struct {
	Allergies []string `json:"allergies"`
	Diets     []string `json:"diets"`
}

type profileResponse struct {
	Success bool    `json:"success"`
	Data    Profile `json:"data"`
	Message string  `json:"message,omitempty"`
}

type tokenResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// NewProfileClient creates a new profile client.
func NewProfileClient(baseURL string) *ProfileClient {
	return &ProfileClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logging.NewLogger("ProfileClient"),
	}
}

// AuthToken resolves the session's bearer token. Returns an empty string for
// unauthenticated sessions.
func (c *ProfileClient) AuthToken(ctx context.Context, sessionID string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/auth/token?session=%s", c.baseURL, sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", nil // unauthenticated, not an error
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	return tok.Token, nil
}

// FetchProfile fetches the user's allergy and diet codes. The caller is
// identified by sessionID (query param) or authToken (bearer header); with
// neither, the service has nobody to look up and will refuse.
func (c *ProfileClient) FetchProfile(ctx context.Context, authToken, sessionID string) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/api/profile/dietary", c.baseURL)
	if sessionID != "" {
		endpoint = fmt.Sprintf("%s?session=%s", endpoint, sessionID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var profResp profileResponse
	if err := json.Unmarshal(body, &profResp); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}

	if !profResp.Success {
		return nil, fmt.Errorf("profile fetch failed: %s", profResp.Message)
	}

	c.logger.Debug("profile fetched",
		"allergies", len(profResp.Data.Allergies),
		"diets", len(profResp.Data.Diets))

	return &profResp.Data, nil
}
