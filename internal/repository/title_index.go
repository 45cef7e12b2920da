package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/timmy/recipe-ingest/internal/domain"
)

const defaultTitleDimension = 256

// Payload keys stored with every title point.
const (
	payloadRecipeID  = "recipe_id"
	payloadTitle     = "title_normalized"
	payloadCuisine   = "cuisine_normalized"
	payloadTotalTime = "total_time_minutes"
)

// QdrantConnectionConfig holds configuration for the Qdrant connection.
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud; implies TLS
	UseTLS          bool
	VectorDimension int
}

// apiKeyCredentials sends the Qdrant Cloud key with every RPC.
type apiKeyCredentials string

func (k apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": string(k)}, nil
}

func (apiKeyCredentials) RequireTransportSecurity() bool { return true }

// TitleIndex keeps one vector per persisted recipe title in Qdrant so that
// near-duplicate candidates can be found by title shape, not only by the
// relational cuisine/time range.
type TitleIndex struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dim         int
}

// NewTitleIndex creates a lazily connecting client. Local instances use
// plaintext; an API key or UseTLS switches to TLS.
func NewTitleIndex(cfg *QdrantConnectionConfig) (*TitleIndex, error) {
	dim := cfg.VectorDimension
	if dim <= 0 {
		dim = defaultTitleDimension
	}

	conn, err := grpc.NewClient(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant client for %s: %w", cfg.Host, err)
	}
	return &TitleIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  cfg.Collection,
		dim:         dim,
	}, nil
}

func dialOptions(cfg *QdrantConnectionConfig) []grpc.DialOption {
	if !cfg.UseTLS && cfg.APIKey == "" {
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})),
	}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials(cfg.APIKey)))
	}
	return opts
}

func (r *TitleIndex) Close() error {
	return r.conn.Close()
}

// Dimension returns the vector size of the collection.
func (r *TitleIndex) Dimension() int {
	return r.dim
}

// EnsureCollection creates the collection and its payload indexes if missing.
// An existing collection with another vector size is an error: sketches of
// different sizes are not comparable.
func (r *TitleIndex) EnsureCollection(ctx context.Context) error {
	info, err := r.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: r.collection})
	if err == nil {
		params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
		if size := params.GetSize(); size != 0 && size != uint64(r.dim) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", r.collection, size, r.dim)
		}
		return nil
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(r.dim), Distance: pb.Distance_Cosine},
		}},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", r.collection, err)
	}

	indexes := []struct {
		field string
		kind  pb.FieldType
	}{
		{payloadCuisine, pb.FieldType_FieldTypeKeyword},
		{payloadTotalTime, pb.FieldType_FieldTypeInteger},
	}
	for _, idx := range indexes {
		kind := idx.kind
		if _, err := r.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: r.collection,
			FieldName:      idx.field,
			FieldType:      &kind,
		}); err != nil {
			return fmt.Errorf("index payload field %s: %w", idx.field, err)
		}
	}
	return nil
}

// UpsertFingerprint stores the title vector of a fingerprint, keyed by recipe ID.
func (r *TitleIndex) UpsertFingerprint(ctx context.Context, fp domain.RecipeFingerprint, vector []float32) error {
	id, err := pointID(fp.RecipeID)
	if err != nil {
		return err
	}
	_, err = r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Points: []*pb.PointStruct{{
			Id:      id,
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
			Payload: fingerprintPayload(fp),
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert title of recipe %s: %w", fp.RecipeID, err)
	}
	return nil
}

// SearchCandidates returns the fingerprints nearest to vector among recipes of
// the same cuisine with total time in [minTotal, maxTotal].
func (r *TitleIndex) SearchCandidates(ctx context.Context, cuisineNorm string, minTotal, maxTotal int, vector []float32, limit int) ([]domain.RecipeFingerprint, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		Filter:         candidateFilter(cuisineNorm, float64(minTotal), float64(maxTotal)),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search titles: %w", err)
	}

	out := make([]domain.RecipeFingerprint, 0, len(resp.GetResult()))
	for _, hit := range resp.GetResult() {
		out = append(out, parseFingerprint(hit.GetPayload()))
	}
	return out, nil
}

// pointID maps a recipe ID onto a Qdrant point ID. Qdrant only accepts UUIDs
// and unsigned integers.
func pointID(recipeID string) (*pb.PointId, error) {
	uid, err := uuid.Parse(recipeID)
	if err != nil {
		return nil, fmt.Errorf("recipe id %q is not a uuid: %w", recipeID, err)
	}
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()}}, nil
}

func fingerprintPayload(fp domain.RecipeFingerprint) map[string]*pb.Value {
	str := func(s string) *pb.Value { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}} }
	return map[string]*pb.Value{
		payloadRecipeID:  str(fp.RecipeID),
		payloadTitle:     str(fp.TitleNormalized),
		payloadCuisine:   str(fp.CuisineNormalized),
		payloadTotalTime: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(fp.TotalTimeMinutes)}},
	}
}

func parseFingerprint(payload map[string]*pb.Value) domain.RecipeFingerprint {
	return domain.RecipeFingerprint{
		RecipeID:          payload[payloadRecipeID].GetStringValue(),
		TitleNormalized:   payload[payloadTitle].GetStringValue(),
		CuisineNormalized: payload[payloadCuisine].GetStringValue(),
		TotalTimeMinutes:  int(payload[payloadTotalTime].GetIntegerValue()),
	}
}

func candidateFilter(cuisineNorm string, lo, hi float64) *pb.Filter {
	field := func(fc *pb.FieldCondition) *pb.Condition {
		return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: fc}}
	}
	return &pb.Filter{Must: []*pb.Condition{
		field(&pb.FieldCondition{
			Key:   payloadCuisine,
			Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: cuisineNorm}},
		}),
		field(&pb.FieldCondition{
			Key:   payloadTotalTime,
			Range: &pb.Range{Gte: &lo, Lte: &hi},
		}),
	}}
}
