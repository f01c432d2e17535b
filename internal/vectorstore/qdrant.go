package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// QdrantConfig configures the remote qdrant backend.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`

	// VectorSize is the embedding dimensionality; it must match the
	// configured embedder.
	VectorSize int `koanf:"vector_size"`

	// MaxMessageSize caps gRPC message sizes in bytes.
	MaxMessageSize int `koanf:"max_message_size"`
}

// ApplyDefaults fills zero-valued fields with working defaults.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 32 * 1024 * 1024
	}
}

// QdrantStore talks to a qdrant server over gRPC. Document content and
// metadata ride in the point payload; vectors are computed through the
// configured embedder.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger
	tracer   trace.Tracer

	// collections caches names already ensured to exist.
	collections sync.Map
}

// NewQdrantStore connects to qdrant and verifies the server is healthy.
func NewQdrantStore(cfg QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	cfg.ApplyDefaults()
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	s := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   cfg,
		logger:   logger.Named("vectorstore.qdrant"),
		tracer:   otel.Tracer("boundaryd.vectorstore.qdrant"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check: %w", err)
	}

	return s, nil
}

// ensureCollection creates the collection on first use. Creation results
// are cached so steady-state writes skip the existence round-trip.
func (s *QdrantStore) ensureCollection(ctx context.Context, name string) error {
	if _, ok := s.collections.Load(name); ok {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.config.VectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}

	s.collections.Store(name, true)
	return nil
}

// AddDocuments embeds and upserts docs into collection. The original
// document ID and content ride in the payload so search can return them.
func (s *QdrantStore) AddDocuments(ctx context.Context, collection string, docs []Document) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "vectorstore.add_documents",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(docs)),
		))
	defer span.End()

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embed %d documents: %w", len(docs), err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	if err := s.ensureCollection(ctx, collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	points := make([]*qdrant.PointStruct, len(docs))
	ids := make([]string, len(docs))
	for i, d := range docs {
		payload := map[string]*qdrant.Value{
			"id":      {Kind: &qdrant.Value_StringValue{StringValue: d.ID}},
			"content": {Kind: &qdrant.Value_StringValue{StringValue: d.Content}},
		}
		for k, v := range d.Metadata {
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		}

		// qdrant point IDs must be UUIDs or integers; the document ID is
		// preserved in the payload either way.
		pointID := d.ID
		if _, err := uuid.Parse(pointID); err != nil {
			pointID = uuid.New().String()
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		}
		ids[i] = d.ID
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upsert to collection %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("indexed documents",
		zap.String("collection", collection),
		zap.Int("count", len(docs)))
	return ids, nil
}

// Search embeds query and returns up to k ranked hits. An absent
// collection yields an empty result.
func (s *QdrantStore) Search(ctx context.Context, collection, query string, k int) ([]SearchResult, error) {
	ctx, span := s.tracer.Start(ctx, "vectorstore.search",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("limit", k),
		))
	defer span.End()

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !exists {
		return nil, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}

	hits := make([]SearchResult, len(points))
	for i, p := range points {
		hit := SearchResult{
			Score:    p.Score,
			Metadata: make(map[string]string, len(p.Payload)),
		}
		for key, v := range p.Payload {
			sv, ok := v.Kind.(*qdrant.Value_StringValue)
			if !ok {
				continue
			}
			switch key {
			case "id":
				hit.ID = sv.StringValue
			case "content":
				hit.Content = sv.StringValue
			default:
				hit.Metadata[key] = sv.StringValue
			}
		}
		hits[i] = hit
	}

	span.SetAttributes(attribute.Int("results", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// DeleteCollection drops a collection and all its points.
func (s *QdrantStore) DeleteCollection(ctx context.Context, collection string) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if err := s.client.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("delete collection %s: %w", collection, err)
	}
	s.collections.Delete(collection)
	return nil
}

// Close tears down the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
