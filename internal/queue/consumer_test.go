package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/menulens/menuscan-worker/internal/analysis"
	"github.com/menulens/menuscan-worker/internal/clients"
	"github.com/menulens/menuscan-worker/internal/logging"
	"github.com/menulens/menuscan-worker/internal/pipeline"
)

// capturedStreamRequest holds the raw JSON fields of one streaming request so
// tests can distinguish a missing list from an empty one.
type capturedStreamRequest struct {
	UserAllergies json.RawMessage `json:"userAllergies"`
	MenuTokens    json.RawMessage `json:"menuTokens"`
}

func streamConsumer(t *testing.T, streamURL string, profile *clients.ProfileClient) *Consumer {
	t.Helper()
	return &Consumer{
		config: &ConsumerConfig{
			StreamURL: streamURL,
			Profile:   profile,
		},
		logger: logging.NewLogger("Queue"),
	}
}

func TestStreamVerdictSendsAllergyListEvenWhenEmpty(t *testing.T) {
	captured := make(chan capturedStreamRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req capturedStreamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode stream request: %v", err)
		}
		captured <- req
		w.Write([]byte("{\"done\":true,\"status\":\"SAFE\",\"totalMs\":5}\n"))
	}))
	defer server.Close()

	c := streamConsumer(t, server.URL, nil)

	result, err := c.streamVerdict(context.Background(), &ScanJob{
		ScanID:    "scan-1",
		ImageData: []byte("img"),
	}, nil)
	if err != nil {
		t.Fatalf("streamVerdict: %v", err)
	}
	if result.OverallStatus != analysis.StatusSafe {
		t.Errorf("status = %s, want SAFE", result.OverallStatus)
	}

	req := <-captured
	if string(req.UserAllergies) != "[]" {
		t.Errorf("userAllergies on the wire = %s, want []", req.UserAllergies)
	}
	if string(req.MenuTokens) != "[]" {
		t.Errorf("menuTokens on the wire = %s, want []", req.MenuTokens)
	}
}

func TestStreamVerdictForwardsProfileAllergies(t *testing.T) {
	profileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/profile/dietary" {
			t.Errorf("unexpected profile path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("session") != "session-9" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"allergies": []string{"peanut", "shellfish"},
				"diets":     []string{},
			},
		})
	}))
	defer profileServer.Close()

	captured := make(chan []string, 1)
	streamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserAllergies []string `json:"userAllergies"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode stream request: %v", err)
		}
		captured <- req.UserAllergies
		w.Write([]byte("{\"done\":true,\"status\":\"DANGER\",\"totalMs\":7}\n"))
	}))
	defer streamServer.Close()

	c := streamConsumer(t, streamServer.URL, clients.NewProfileClient(profileServer.URL))

	result, err := c.streamVerdict(context.Background(), &ScanJob{
		ScanID:    "scan-2",
		SessionID: "session-9",
		ImageData: []byte("img"),
	}, []pipeline.Entry{{Original: "김치찌개", Normalized: "김치찌개", Translated: "Kimchi Stew"}})
	if err != nil {
		t.Fatalf("streamVerdict: %v", err)
	}
	if result.OverallStatus != analysis.StatusDanger {
		t.Errorf("status = %s, want DANGER", result.OverallStatus)
	}

	allergies := <-captured
	if len(allergies) != 2 || allergies[0] != "peanut" || allergies[1] != "shellfish" {
		t.Errorf("userAllergies forwarded = %v, want [peanut shellfish]", allergies)
	}
}

func TestStreamVerdictToleratesProfileOutage(t *testing.T) {
	captured := make(chan capturedStreamRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req capturedStreamRequest
		json.NewDecoder(r.Body).Decode(&req)
		captured <- req
		w.Write([]byte("{\"done\":true,\"status\":\"SAFE\",\"totalMs\":3}\n"))
	}))
	defer server.Close()

	// Unroutable profile service; the scan must still go through.
	c := streamConsumer(t, server.URL, clients.NewProfileClient("http://127.0.0.1:1"))

	result, err := c.streamVerdict(context.Background(), &ScanJob{
		ScanID:    "scan-3",
		SessionID: "session-9",
		ImageData: []byte("img"),
	}, nil)
	if err != nil {
		t.Fatalf("streamVerdict: %v", err)
	}
	if result.OverallStatus != analysis.StatusSafe {
		t.Errorf("status = %s, want SAFE", result.OverallStatus)
	}

	req := <-captured
	if string(req.UserAllergies) != "[]" {
		t.Errorf("userAllergies on the wire = %s, want []", req.UserAllergies)
	}
}
