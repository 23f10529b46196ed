package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	errorsx "github.com/converso-ai/chat-backend/pkg/errors"
	"github.com/converso-ai/chat-backend/pkg/types"
)

// FileI covers file lookups, the reference resolver and the batched hard
// deletes used by orphan cleanup.
type FileI interface {
	CreateFile(ctx context.Context, file FileModel) (*FileModel, error)
	GetFileByUID(ctx context.Context, fileUID types.FileUIDType) (*FileModel, error)
	GetFilesByUIDs(ctx context.Context, fileUIDs []types.FileUIDType) ([]FileModel, error)

	// GetReferencedFileUIDs returns the subset of candidates that is still
	// referenced by any knowledge base or chat. It always executes exactly
	// two bulk queries, regardless of the candidate count.
	GetReferencedFileUIDs(ctx context.Context, candidates []types.FileUIDType) (map[types.FileUIDType]struct{}, error)

	HardDeleteFile(ctx context.Context, fileUID types.FileUIDType) (map[string]int64, error)
	HardDeleteFiles(ctx context.Context, fileUIDs []types.FileUIDType) (map[string]int64, error)
}

// CreateFile inserts a new file record into the database.
func (r *repository) CreateFile(ctx context.Context, file FileModel) (*FileModel, error) {
	if err := r.db.WithContext(ctx).Create(&file).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

// GetFileByUID fetches a file by UID.
func (r *repository) GetFileByUID(ctx context.Context, fileUID types.FileUIDType) (*FileModel, error) {
	var file FileModel
	whereString := fmt.Sprintf("%v = ?", FileColumn.UID)
	if err := r.db.WithContext(ctx).Where(whereString, fileUID).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("file %v: %w", fileUID, errorsx.ErrNotFound)
		}
		return nil, err
	}
	return &file, nil
}

// GetFilesByUIDs fetches the file records for the given UIDs. Missing UIDs
// are silently skipped; callers treat absent files as already deleted.
func (r *repository) GetFilesByUIDs(ctx context.Context, fileUIDs []types.FileUIDType) ([]FileModel, error) {
	if len(fileUIDs) == 0 {
		return nil, nil
	}
	var files []FileModel
	whereString := fmt.Sprintf("%v IN ?", FileColumn.UID)
	if err := r.db.WithContext(ctx).Where(whereString, fileUIDs).Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// GetReferencedFileUIDs resolves which candidates still have at least one
// reference. One bulk query against the knowledge base junction, one against
// the chat junction, results unioned into a set.
func (r *repository) GetReferencedFileUIDs(ctx context.Context, candidates []types.FileUIDType) (map[types.FileUIDType]struct{}, error) {
	referenced := make(map[types.FileUIDType]struct{})
	if len(candidates) == 0 {
		return referenced, nil
	}

	var kbRefs []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&KnowledgeBaseFileModel{}).
		Distinct("file_uid").
		Where("file_uid IN ?", candidates).
		Pluck("file_uid", &kbRefs).Error; err != nil {
		return nil, fmt.Errorf("resolving knowledge base references: %w", err)
	}

	var chatRefs []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&ChatFileModel{}).
		Distinct("file_uid").
		Where("file_uid IN ?", candidates).
		Pluck("file_uid", &chatRefs).Error; err != nil {
		return nil, fmt.Errorf("resolving chat references: %w", err)
	}

	for _, uid := range kbRefs {
		referenced[uid] = struct{}{}
	}
	for _, uid := range chatRefs {
		referenced[uid] = struct{}{}
	}
	return referenced, nil
}

// HardDeleteFile removes the file row and any junction rows pointing at it
// in one transaction. Returns the deleted row count per table.
func (r *repository) HardDeleteFile(ctx context.Context, fileUID types.FileUIDType) (map[string]int64, error) {
	return r.HardDeleteFiles(ctx, []types.FileUIDType{fileUID})
}

// HardDeleteFiles removes the given file rows and their junction rows in one
// transaction, with a single batched DELETE per table.
func (r *repository) HardDeleteFiles(ctx context.Context, fileUIDs []types.FileUIDType) (map[string]int64, error) {
	counts := map[string]int64{}
	if len(fileUIDs) == 0 {
		return counts, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("file_uid IN ?", fileUIDs).Delete(&KnowledgeBaseFileModel{})
		if result.Error != nil {
			return result.Error
		}
		counts[KnowledgeBaseFileModel{}.TableName()] = result.RowsAffected

		result = tx.Where("file_uid IN ?", fileUIDs).Delete(&ChatFileModel{})
		if result.Error != nil {
			return result.Error
		}
		counts[ChatFileModel{}.TableName()] = result.RowsAffected

		result = tx.Where(fmt.Sprintf("%v IN ?", FileColumn.UID), fileUIDs).Delete(&FileModel{})
		if result.Error != nil {
			return result.Error
		}
		counts[FileModel{}.TableName()] = result.RowsAffected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
