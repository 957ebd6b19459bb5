package ocr

import (
	"context"

	"github.com/menulens/menuscan-worker/internal/clients"
	"github.com/menulens/menuscan-worker/internal/pipeline"
)

// RemoteEngine delegates recognition to the vision service.
type RemoteEngine struct {
	client *clients.VisionClient
	locale string
}

// NewRemoteEngine creates a remote OCR engine.
func NewRemoteEngine(client *clients.VisionClient, locale string) *RemoteEngine {
	return &RemoteEngine{client: client, locale: locale}
}

// Recognize extracts tokens via the vision service.
func (r *RemoteEngine) Recognize(ctx context.Context, image []byte) ([]pipeline.Token, error) {
	return r.client.ExtractTokens(ctx, image, r.locale)
}
