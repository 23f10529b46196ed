package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	errorsx "github.com/converso-ai/chat-backend/pkg/errors"
	"github.com/converso-ai/chat-backend/pkg/types"
)

// KnowledgeBaseI covers the knowledge base queries used by the CRUD layer
// (creation, listing) and by the deletion engine and reconciler (soft-delete
// gate, pending-deletion poll, junction-atomic hard delete).
type KnowledgeBaseI interface {
	CreateKnowledgeBase(ctx context.Context, kb KnowledgeBaseModel) (*KnowledgeBaseModel, error)
	ListKnowledgeBases(ctx context.Context, owner types.OwnerUIDType) ([]KnowledgeBaseModel, error)
	// GetKnowledgeBaseByUID returns the knowledge base regardless of its
	// soft-deletion state, so the reconciler can process rows it polled.
	GetKnowledgeBaseByUID(ctx context.Context, kbUID types.KBUIDType) (*KnowledgeBaseModel, error)

	SoftDeleteKnowledgeBase(ctx context.Context, owner types.OwnerUIDType, kbUID types.KBUIDType) (int64, error)
	SoftDeleteKnowledgeBasesByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	ListSoftDeletedKnowledgeBases(ctx context.Context, limit int) ([]KnowledgeBaseModel, error)
	HardDeleteKnowledgeBase(ctx context.Context, kbUID types.KBUIDType) (map[string]int64, error)

	LinkFileToKnowledgeBase(ctx context.Context, kbUID types.KBUIDType, fileUID types.FileUIDType) error
	GetFileUIDsByKnowledgeBaseUID(ctx context.Context, kbUID types.KBUIDType) ([]types.FileUIDType, error)
	GetKnowledgeBaseUIDsByFileUID(ctx context.Context, fileUID types.FileUIDType) ([]types.KBUIDType, error)
}

// CreateKnowledgeBase inserts a new knowledge base record into the database.
func (r *repository) CreateKnowledgeBase(ctx context.Context, kb KnowledgeBaseModel) (*KnowledgeBaseModel, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// check if the id is unique among the owner's knowledge bases
		var count int64
		whereString := fmt.Sprintf("%v = ? AND %v = ? AND %v IS NULL", KnowledgeBaseColumn.Owner, KnowledgeBaseColumn.KbID, KnowledgeBaseColumn.DeleteTime)
		if err := tx.Model(&KnowledgeBaseModel{}).Where(whereString, kb.Owner, kb.KbID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("knowledge base ID already exists: %w", errorsx.ErrAlreadyExists)
		}

		return tx.Create(&kb).Error
	})
	if err != nil {
		return nil, err
	}

	return &kb, nil
}

// ListKnowledgeBases fetches the owner's knowledge bases, excluding
// soft-deleted ones.
func (r *repository) ListKnowledgeBases(ctx context.Context, owner types.OwnerUIDType) ([]KnowledgeBaseModel, error) {
	var knowledgeBases []KnowledgeBaseModel
	whereString := fmt.Sprintf("%v IS NULL AND %v = ?", KnowledgeBaseColumn.DeleteTime, KnowledgeBaseColumn.Owner)
	if err := r.db.WithContext(ctx).Where(whereString, owner).Find(&knowledgeBases).Error; err != nil {
		return nil, err
	}

	return knowledgeBases, nil
}

// GetKnowledgeBaseByUID fetches a knowledge base by UID, including
// soft-deleted rows.
func (r *repository) GetKnowledgeBaseByUID(ctx context.Context, kbUID types.KBUIDType) (*KnowledgeBaseModel, error) {
	var kb KnowledgeBaseModel
	whereString := fmt.Sprintf("%v = ?", KnowledgeBaseColumn.UID)
	if err := r.db.WithContext(ctx).Where(whereString, kbUID).First(&kb).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("knowledge base %v: %w", kbUID, errorsx.ErrNotFound)
		}
		return nil, err
	}
	return &kb, nil
}

// SoftDeleteKnowledgeBase sets the delete time on one active knowledge base
// owned by the given user and returns the affected row count. It never
// touches rows that are already soft-deleted, so the delete time of a
// pending cleanup is stable across retries.
func (r *repository) SoftDeleteKnowledgeBase(ctx context.Context, owner types.OwnerUIDType, kbUID types.KBUIDType) (int64, error) {
	whereString := fmt.Sprintf("%v = ? AND %v = ? AND %v IS NULL", KnowledgeBaseColumn.Owner, KnowledgeBaseColumn.UID, KnowledgeBaseColumn.DeleteTime)
	result := r.db.WithContext(ctx).Model(&KnowledgeBaseModel{}).
		Where(whereString, owner, kbUID).
		Update(KnowledgeBaseColumn.DeleteTime, time.Now().UTC())
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// SoftDeleteKnowledgeBasesByOwner marks every active knowledge base of the
// owner as deleted in a single atomic UPDATE.
func (r *repository) SoftDeleteKnowledgeBasesByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error) {
	whereString := fmt.Sprintf("%v = ? AND %v IS NULL", KnowledgeBaseColumn.Owner, KnowledgeBaseColumn.DeleteTime)
	result := r.db.WithContext(ctx).Model(&KnowledgeBaseModel{}).
		Where(whereString, owner).
		Update(KnowledgeBaseColumn.DeleteTime, time.Now().UTC())
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListSoftDeletedKnowledgeBases returns up to limit knowledge bases pending
// reconciliation, oldest deletion first so stuck entities don't starve
// newer ones of visibility in logs.
func (r *repository) ListSoftDeletedKnowledgeBases(ctx context.Context, limit int) ([]KnowledgeBaseModel, error) {
	var knowledgeBases []KnowledgeBaseModel
	whereString := fmt.Sprintf("%v IS NOT NULL", KnowledgeBaseColumn.DeleteTime)
	if err := r.db.WithContext(ctx).Where(whereString).
		Order(KnowledgeBaseColumn.DeleteTime).
		Limit(limit).
		Find(&knowledgeBases).Error; err != nil {
		return nil, err
	}
	return knowledgeBases, nil
}

// HardDeleteKnowledgeBase removes the knowledge base row and its file
// junction rows in one transaction. The junction rows must disappear exactly
// when the parent does; the reference resolver depends on it. Returns the
// deleted row count per table.
func (r *repository) HardDeleteKnowledgeBase(ctx context.Context, kbUID types.KBUIDType) (map[string]int64, error) {
	counts := map[string]int64{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("kb_uid = ?", kbUID).Delete(&KnowledgeBaseFileModel{})
		if result.Error != nil {
			return result.Error
		}
		counts[KnowledgeBaseFileModel{}.TableName()] = result.RowsAffected

		result = tx.Where(fmt.Sprintf("%v = ?", KnowledgeBaseColumn.UID), kbUID).Delete(&KnowledgeBaseModel{})
		if result.Error != nil {
			return result.Error
		}
		counts[KnowledgeBaseModel{}.TableName()] = result.RowsAffected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// LinkFileToKnowledgeBase inserts a junction row between a knowledge base
// and a file.
func (r *repository) LinkFileToKnowledgeBase(ctx context.Context, kbUID types.KBUIDType, fileUID types.FileUIDType) error {
	link := KnowledgeBaseFileModel{KbUID: kbUID, FileUID: fileUID}
	return r.db.WithContext(ctx).Create(&link).Error
}

// GetFileUIDsByKnowledgeBaseUID returns the UIDs of the files linked to a
// knowledge base. The reconciler calls this before cascading, because the
// junction rows disappear together with the knowledge base row.
func (r *repository) GetFileUIDsByKnowledgeBaseUID(ctx context.Context, kbUID types.KBUIDType) ([]types.FileUIDType, error) {
	var fileUIDs []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&KnowledgeBaseFileModel{}).
		Where("kb_uid = ?", kbUID).
		Pluck("file_uid", &fileUIDs).Error; err != nil {
		return nil, err
	}
	return fileUIDs, nil
}

// GetKnowledgeBaseUIDsByFileUID returns the UIDs of the knowledge bases
// referencing a file.
func (r *repository) GetKnowledgeBaseUIDsByFileUID(ctx context.Context, fileUID types.FileUIDType) ([]types.KBUIDType, error) {
	var kbUIDs []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&KnowledgeBaseFileModel{}).
		Where("file_uid = ?", fileUID).
		Pluck("kb_uid", &kbUIDs).Error; err != nil {
		return nil, err
	}
	return kbUIDs, nil
}
