/**
 * Qdrant Vector Database Client for the Poster Worker
 *
 * Indexes a colour-layout signature of every processed poster so visually
 * similar posters can be found. Uses Qdrant's native gRPC API.
 */

package storage

import (
	"context"
	"fmt"
	"image"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Signature layout: SignatureGrid x SignatureGrid cells, mean R, G, B each.
const (
	SignatureGrid = 4
	SignatureDims = SignatureGrid * SignatureGrid * 3
)

// QdrantClient handles vector database operations
type QdrantClient struct {
	client           qdrant.PointsClient
	collectionClient qdrant.CollectionsClient
	conn             *grpc.ClientConn
	collectionName   string
}

// SimilarPoster is one search hit
type SimilarPoster struct {
	Key   string
	URL   string
	Score float32
}

// NewQdrantClient creates a new Qdrant client
func NewQdrantClient(address string, collectionName string) (*QdrantClient, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}

	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	// Connect to Qdrant using gRPC
	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	qc := &QdrantClient{
		client:           qdrant.NewPointsClient(conn),
		collectionClient: qdrant.NewCollectionsClient(conn),
		conn:             conn,
		collectionName:   collectionName,
	}

	// Ensure collection exists
	if err := qc.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return qc, nil
}

// ensureCollection creates the collection if it doesn't exist
func (q *QdrantClient) ensureCollection(ctx context.Context) error {
	listResp, err := q.collectionClient.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == q.collectionName {
			return nil
		}
	}

	_, err = q.collectionClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     SignatureDims,
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

// PointID is the deterministic point ID of key, so re-indexing a poster
// overwrites its previous point.
func PointID(key string) string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte("poster:"+key)).String()
}

// IndexPoster upserts the signature of img under key
func (q *QdrantClient) IndexPoster(ctx context.Context, key, posterURL, outcome string, img image.Image) error {
	if img == nil {
		return fmt.Errorf("image is required")
	}

	payload := map[string]*qdrant.Value{
		"cache_key":  {Kind: &qdrant.Value_StringValue{StringValue: key}},
		"source_url": {Kind: &qdrant.Value_StringValue{StringValue: posterURL}},
		"outcome":    {Kind: &qdrant.Value_StringValue{StringValue: outcome}},
	}

	pointStruct := &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{
				Uuid: PointID(key),
			},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{
					Data: Signature(img),
				},
			},
		},
		Payload: payload,
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         []*qdrant.PointStruct{pointStruct},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert poster signature: %w", err)
	}

	return nil
}

// SearchSimilar returns the posters whose signature is closest to img's
func (q *QdrantClient) SearchSimilar(ctx context.Context, img image.Image, limit int) ([]SimilarPoster, error) {
	if limit <= 0 {
		limit = 10
	}

	searchReq := &qdrant.SearchPoints{
		CollectionName: q.collectionName,
		Vector:         Signature(img),
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{
				Enable: true,
			},
		},
	}

	results, err := q.client.Search(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("failed to search poster signatures: %w", err)
	}

	hits := make([]SimilarPoster, 0, len(results.Result))
	for _, result := range results.Result {
		hit := SimilarPoster{Score: result.Score}
		if v, ok := result.Payload["cache_key"]; ok {
			hit.Key = v.GetStringValue()
		}
		if v, ok := result.Payload["source_url"]; ok {
			hit.URL = v.GetStringValue()
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// Close closes the Qdrant client connection
func (q *QdrantClient) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// Signature computes the mean colour of each cell of a SignatureGrid x
// SignatureGrid grid over img, channels scaled to [0,1], row-major R,G,B.
func Signature(img image.Image) []float32 {
	out := make([]float32, SignatureDims)
	b := img.Bounds()
	if b.Empty() {
		return out
	}

	var sums [SignatureGrid * SignatureGrid][3]float64
	var counts [SignatureGrid * SignatureGrid]float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		cy := (y - b.Min.Y) * SignatureGrid / b.Dy()
		for x := b.Min.X; x < b.Max.X; x++ {
			cx := (x - b.Min.X) * SignatureGrid / b.Dx()
			r, g, bl, _ := img.At(x, y).RGBA()
			cell := cy*SignatureGrid + cx
			sums[cell][0] += float64(r)
			sums[cell][1] += float64(g)
			sums[cell][2] += float64(bl)
			counts[cell]++
		}
	}

	for cell := range sums {
		if counts[cell] == 0 {
			continue
		}
		for c := 0; c < 3; c++ {
			out[cell*3+c] = float32(sums[cell][c] / counts[cell] / 0xffff)
		}
	}
	return out
}
