/**
 * Qdrant Dish Name Index
 *
 * Stores embeddings of translated dish names so repeated scans of the
 * same menu can resolve names by semantic similarity instead of a new
 * translation round trip. Uses Qdrant's native gRPC API.
 */

package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// voyage-3 embedding dimensions
const dishVectorSize = 1024

// DishIndex handles dish embedding storage and lookup
type DishIndex struct {
	points         qdrant.PointsClient
	collections    qdrant.CollectionsClient
	conn           *grpc.ClientConn
	collectionName string
}

// DishPoint represents an indexed dish name with its embedding
type DishPoint struct {
	ID         string
	Vector     []float32
	Original   string
	Translated string
	Locale     string
	Score      float32
}

// NewDishIndex creates a new dish index client
func NewDishIndex(address string, collectionName string) (*DishIndex, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}

	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	idx := &DishIndex{
		points:         qdrant.NewPointsClient(conn),
		collections:    qdrant.NewCollectionsClient(conn),
		conn:           conn,
		collectionName: collectionName,
	}

	if err := idx.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return idx, nil
}

// ensureCollection creates the collection if it doesn't exist
func (d *DishIndex) ensureCollection(ctx context.Context) error {
	listResp, err := d.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == d.collectionName {
			return nil
		}
	}

	_, err = d.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: d.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     dishVectorSize,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})

	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// UpsertDish stores or updates a dish embedding
func (d *DishIndex) UpsertDish(ctx context.Context, point *DishPoint) error {
	if point == nil {
		return fmt.Errorf("point is required")
	}

	if len(point.Vector) != dishVectorSize {
		return fmt.Errorf("invalid vector dimensions: expected %d, got %d", dishVectorSize, len(point.Vector))
	}

	if point.ID == "" {
		point.ID = uuid.New().String()
	}

	payload := map[string]*qdrant.Value{
		"original": {
			Kind: &qdrant.Value_StringValue{StringValue: point.Original},
		},
		"translated": {
			Kind: &qdrant.Value_StringValue{StringValue: point.Translated},
		},
		"locale": {
			Kind: &qdrant.Value_StringValue{StringValue: point.Locale},
		},
	}

	pointStruct := &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{
				Uuid: point.ID,
			},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{
					Data: point.Vector,
				},
			},
		},
		Payload: payload,
	}

	_, err := d.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collectionName,
		Points:         []*qdrant.PointStruct{pointStruct},
	})

	if err != nil {
		return fmt.Errorf("failed to upsert dish: %w", err)
	}

	return nil
}

// SearchSimilar returns the closest indexed dishes to the query vector
func (d *DishIndex) SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]*DishPoint, error) {
	if len(queryVector) != dishVectorSize {
		return nil, fmt.Errorf("invalid query vector dimensions: expected %d, got %d", dishVectorSize, len(queryVector))
	}

	if limit <= 0 {
		limit = 5
	}

	results, err := d.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: d.collectionName,
		Vector:         queryVector,
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{
				Enable: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search dishes: %w", err)
	}

	points := make([]*DishPoint, 0, len(results.Result))
	for _, result := range results.Result {
		point := &DishPoint{Score: result.Score}

		if result.Id != nil {
			point.ID = result.Id.GetUuid()
		}

		if result.Payload != nil {
			if v, ok := result.Payload["original"]; ok {
				point.Original = v.GetStringValue()
			}
			if v, ok := result.Payload["translated"]; ok {
				point.Translated = v.GetStringValue()
			}
			if v, ok := result.Payload["locale"]; ok {
				point.Locale = v.GetStringValue()
			}
		}

		points = append(points, point)
	}

	return points, nil
}

// Embedder turns dish names into vectors. Satisfied by
// clients.EmbeddingClient.
type Embedder interface {
	EmbedDishNames(ctx context.Context, names []string) ([][]float32, error)
}

// SimilarDishes embeds a dish name and returns the k closest indexed dishes.
// Diagnostic lookup; the translation fallback chain never consults it.
func (d *DishIndex) SimilarDishes(ctx context.Context, embed Embedder, name string, k int) ([]*DishPoint, error) {
	if name == "" {
		return nil, fmt.Errorf("dish name is required")
	}

	vectors, err := embed.EmbedDishNames(ctx, []string{name})
	if err != nil {
		return nil, fmt.Errorf("failed to embed dish name: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}

	return d.SearchSimilar(ctx, vectors[0], k)
}

// DeleteDish removes an indexed dish by ID
func (d *DishIndex) DeleteDish(ctx context.Context, pointID string) error {
	if pointID == "" {
		return fmt.Errorf("point ID is required")
	}

	_, err := d.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{
						{
							PointIdOptions: &qdrant.PointId_Uuid{
								Uuid: pointID,
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete dish: %w", err)
	}

	return nil
}

// CollectionInfo returns collection statistics
func (d *DishIndex) CollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	info, err := d.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: d.collectionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	return map[string]interface{}{
		"collection_name": d.collectionName,
		"points_count":    info.Result.GetPointsCount(),
		"indexed_vectors": info.Result.GetIndexedVectorsCount(),
		"status":          info.Result.GetStatus().String(),
	}, nil
}

// Close closes the Qdrant connection
func (d *DishIndex) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
