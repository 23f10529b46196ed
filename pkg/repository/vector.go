package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/converso-ai/chat-backend/pkg/types"
)

// VectorDatabase implements the necessary use cases to interact with a
// vector database (e.g., Milvus). Every deletion operation is safe to call
// when the collection does not exist: it is a no-op, not an error, so
// retried cascades stay idempotent.
type VectorDatabase interface {
	CollectionExists(_ context.Context, collectionID string) (bool, error)
	CreateCollection(_ context.Context, collectionID string, dimensionality uint32) error
	DropCollection(_ context.Context, collectionID string) error
	// DeleteEmbeddingsWithFileUID deletes the vectors originating from the
	// given file.
	DeleteEmbeddingsWithFileUID(_ context.Context, collectionID string, fileUID types.FileUIDType) error
	// DeleteEmbeddingsWithContentHash deletes the vectors carrying the
	// given content hash. Covers duplicate-hash entries that a file UID
	// filter would miss.
	DeleteEmbeddingsWithContentHash(_ context.Context, collectionID string, contentHash string) error
}

// Milvus implementation constants
const (
	scanNList  = 1024
	metricType = entity.COSINE
	withRaw    = true

	collectionFieldSourceTable  = "source_table"
	collectionFieldSourceUID    = "source_uid"
	collectionFieldEmbeddingUID = "embedding_uid"
	collectionFieldEmbedding    = "embedding"
	collectionFieldFileUID      = "file_uid"
	collectionFieldContentHash  = "content_hash"
)

type milvusClient struct {
	c   client.Client
	log *zap.Logger
}

// NewVectorDatabase returns a VectorDatabase implementation (milvus).
func NewVectorDatabase(ctx context.Context, host, port string, log *zap.Logger) (db VectorDatabase, closeFn func() error, _ error) {
	c, err := client.NewGrpcClient(ctx, host+":"+port)
	if err != nil {
		return nil, nil, err
	}

	return &milvusClient{
		c:   c,
		log: log,
	}, c.Close, nil
}

// CollectionExists checks if a collection exists in the vector database.
func (m *milvusClient) CollectionExists(ctx context.Context, collectionID string) (bool, error) {
	has, err := m.c.HasCollection(ctx, collectionID)
	if err != nil {
		return false, fmt.Errorf("checking collection existence: %w", err)
	}
	return has, nil
}

// CreateCollection creates a collection with the chunk vector schema and its
// index. Creating an existing collection is a no-op.
func (m *milvusClient) CreateCollection(ctx context.Context, collectionID string, dimensionality uint32) error {
	logger := m.log.With(zap.String("collection_id", collectionID), zap.Uint32("dimensionality", dimensionality))

	has, err := m.c.HasCollection(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("checking collection existence: %w", err)
	}
	if has {
		logger.Info("Skipping collection creation: already exists.")
		return nil
	}

	vectorDimStr := fmt.Sprintf("%d", dimensionality)
	schema := &entity.Schema{
		CollectionName: collectionID,
		Fields: []*entity.Field{
			{Name: collectionFieldSourceTable, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "255"}},
			{Name: collectionFieldSourceUID, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "255"}},
			{Name: collectionFieldEmbeddingUID, DataType: entity.FieldTypeVarChar, PrimaryKey: true, TypeParams: map[string]string{"max_length": "255"}},
			{Name: collectionFieldEmbedding, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": vectorDimStr}},
			{Name: collectionFieldFileUID, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "255"}},
			{Name: collectionFieldContentHash, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "255"}},
		},
	}

	if err := m.c.CreateCollection(ctx, schema, 1); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	index, err := entity.NewIndexSCANN(metricType, scanNList, withRaw)
	if err != nil {
		return fmt.Errorf("creating index config: %w", err)
	}
	if err := m.c.CreateIndex(ctx, collectionID, collectionFieldEmbedding, index, false); err != nil {
		return fmt.Errorf("creating index: %w", err)
	}

	logger.Info("Collection created successfully")
	return nil
}

// DropCollection drops a collection. Dropping a missing collection is a
// no-op.
func (m *milvusClient) DropCollection(ctx context.Context, collectionID string) error {
	has, err := m.c.HasCollection(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("checking collection existence: %w", err)
	}
	if !has {
		m.log.Info("Collection does not exist, skipping drop", zap.String("collection_id", collectionID))
		return nil
	}

	if err := m.c.DropCollection(ctx, collectionID); err != nil {
		return fmt.Errorf("dropping collection: %w", err)
	}
	return nil
}

// DeleteEmbeddingsWithFileUID deletes the vectors whose file_uid attribute
// matches the given file.
func (m *milvusClient) DeleteEmbeddingsWithFileUID(ctx context.Context, collectionID string, fileUID types.FileUIDType) error {
	expr := fmt.Sprintf(`%s == "%s"`, collectionFieldFileUID, fileUID.String())
	return m.deleteWithExpr(ctx, collectionID, expr)
}

// DeleteEmbeddingsWithContentHash deletes the vectors whose content_hash
// attribute matches the given hash.
func (m *milvusClient) DeleteEmbeddingsWithContentHash(ctx context.Context, collectionID string, contentHash string) error {
	expr := fmt.Sprintf(`%s == "%s"`, collectionFieldContentHash, contentHash)
	return m.deleteWithExpr(ctx, collectionID, expr)
}

func (m *milvusClient) deleteWithExpr(ctx context.Context, collectionID, expr string) error {
	logger := m.log.With(zap.String("collection_id", collectionID), zap.String("expr", expr))

	has, err := m.c.HasCollection(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("checking collection existence: %w", err)
	}
	// If the collection doesn't exist, there's nothing to delete.
	if !has {
		logger.Info("Collection does not exist, skipping delete")
		return nil
	}

	// Only load if not already loaded.
	loadState, err := m.c.GetLoadState(ctx, collectionID, []string{})
	if err != nil {
		return fmt.Errorf("checking load state: %w", err)
	}
	if loadState != entity.LoadStateLoaded {
		if err := m.c.LoadCollection(ctx, collectionID, false); err != nil {
			return fmt.Errorf("loading collection for delete: %w", err)
		}
	}

	if err := m.c.Delete(ctx, collectionID, "", expr); err != nil {
		return fmt.Errorf("deleting vectors: %w", err)
	}

	// Flush with retry so the deletion is visible to subsequent reads.
	maxRetries := 3
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = m.c.Flush(ctx, collectionID, false)
		if err == nil {
			break
		}
		logger.Warn("Failed to flush collection, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-time.After(time.Second * time.Duration(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("flushing collection: %w", ctx.Err())
		}
	}
	if err != nil {
		return fmt.Errorf("flushing collection: %w", err)
	}

	return nil
}
