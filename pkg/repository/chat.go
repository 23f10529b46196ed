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

// ChatI covers the chat queries used by the CRUD layer and by the deletion
// engine and reconciler.
type ChatI interface {
	CreateChat(ctx context.Context, chat ChatModel) (*ChatModel, error)
	// GetChatByUID returns the chat regardless of its soft-deletion state,
	// so the reconciler can process rows it polled.
	GetChatByUID(ctx context.Context, chatUID types.ChatUIDType) (*ChatModel, error)

	SoftDeleteChat(ctx context.Context, owner types.OwnerUIDType, chatUID types.ChatUIDType) (int64, error)
	SoftDeleteChatsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	ListSoftDeletedChats(ctx context.Context, limit int) ([]ChatModel, error)
	HardDeleteChat(ctx context.Context, chatUID types.ChatUIDType) (map[string]int64, error)

	LinkFileToChat(ctx context.Context, chatUID types.ChatUIDType, fileUID types.FileUIDType) error
	LinkTagToChat(ctx context.Context, chatUID types.ChatUIDType, tagUID types.TagUIDType) error
	GetFileUIDsByChatUID(ctx context.Context, chatUID types.ChatUIDType) ([]types.FileUIDType, error)
	GetTagUIDsByChatUID(ctx context.Context, chatUID types.ChatUIDType) ([]types.TagUIDType, error)
}

// CreateChat inserts a new chat record into the database.
func (r *repository) CreateChat(ctx context.Context, chat ChatModel) (*ChatModel, error) {
	if err := r.db.WithContext(ctx).Create(&chat).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetChatByUID fetches a chat by UID, including soft-deleted rows.
func (r *repository) GetChatByUID(ctx context.Context, chatUID types.ChatUIDType) (*ChatModel, error) {
	var chat ChatModel
	whereString := fmt.Sprintf("%v = ?", ChatColumn.UID)
	if err := r.db.WithContext(ctx).Where(whereString, chatUID).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chat %v: %w", chatUID, errorsx.ErrNotFound)
		}
		return nil, err
	}
	return &chat, nil
}

// SoftDeleteChat sets the delete time on one active chat owned by the given
// user and returns the affected row count.
func (r *repository) SoftDeleteChat(ctx context.Context, owner types.OwnerUIDType, chatUID types.ChatUIDType) (int64, error) {
	whereString := fmt.Sprintf("%v = ? AND %v = ? AND %v IS NULL", ChatColumn.Owner, ChatColumn.UID, ChatColumn.DeleteTime)
	result := r.db.WithContext(ctx).Model(&ChatModel{}).
		Where(whereString, owner, chatUID).
		Update(ChatColumn.DeleteTime, time.Now().UTC())
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// SoftDeleteChatsByOwner marks every active chat of the owner as deleted in
// a single atomic UPDATE.
func (r *repository) SoftDeleteChatsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error) {
	whereString := fmt.Sprintf("%v = ? AND %v IS NULL", ChatColumn.Owner, ChatColumn.DeleteTime)
	result := r.db.WithContext(ctx).Model(&ChatModel{}).
		Where(whereString, owner).
		Update(ChatColumn.DeleteTime, time.Now().UTC())
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListSoftDeletedChats returns up to limit chats pending reconciliation,
// oldest deletion first.
func (r *repository) ListSoftDeletedChats(ctx context.Context, limit int) ([]ChatModel, error) {
	var chats []ChatModel
	whereString := fmt.Sprintf("%v IS NOT NULL", ChatColumn.DeleteTime)
	if err := r.db.WithContext(ctx).Where(whereString).
		Order(ChatColumn.DeleteTime).
		Limit(limit).
		Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

// HardDeleteChat removes the chat row together with its file and tag
// junction rows in one transaction. Returns the deleted row count per table.
func (r *repository) HardDeleteChat(ctx context.Context, chatUID types.ChatUIDType) (map[string]int64, error) {
	counts := map[string]int64{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("chat_uid = ?", chatUID).Delete(&ChatFileModel{})
		if result.Error != nil {
			return result.Error
		}
		counts[ChatFileModel{}.TableName()] = result.RowsAffected

		result = tx.Where("chat_uid = ?", chatUID).Delete(&ChatTagModel{})
		if result.Error != nil {
			return result.Error
		}
		counts[ChatTagModel{}.TableName()] = result.RowsAffected

		result = tx.Where(fmt.Sprintf("%v = ?", ChatColumn.UID), chatUID).Delete(&ChatModel{})
		if result.Error != nil {
			return result.Error
		}
		counts[ChatModel{}.TableName()] = result.RowsAffected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// LinkFileToChat inserts a junction row between a chat and a file.
func (r *repository) LinkFileToChat(ctx context.Context, chatUID types.ChatUIDType, fileUID types.FileUIDType) error {
	link := ChatFileModel{ChatUID: chatUID, FileUID: fileUID}
	return r.db.WithContext(ctx).Create(&link).Error
}

// LinkTagToChat inserts a junction row between a chat and a tag.
func (r *repository) LinkTagToChat(ctx context.Context, chatUID types.ChatUIDType, tagUID types.TagUIDType) error {
	link := ChatTagModel{ChatUID: chatUID, TagUID: tagUID}
	return r.db.WithContext(ctx).Create(&link).Error
}

// GetFileUIDsByChatUID returns the UIDs of the files linked to a chat. The
// reconciler calls this before cascading, because the junction rows
// disappear together with the chat row.
func (r *repository) GetFileUIDsByChatUID(ctx context.Context, chatUID types.ChatUIDType) ([]types.FileUIDType, error) {
	var fileUIDs []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&ChatFileModel{}).
		Where("chat_uid = ?", chatUID).
		Pluck("file_uid", &fileUIDs).Error; err != nil {
		return nil, err
	}
	return fileUIDs, nil
}

// GetTagUIDsByChatUID returns the UIDs of the tags attached to a chat.
func (r *repository) GetTagUIDsByChatUID(ctx context.Context, chatUID types.ChatUIDType) ([]types.TagUIDType, error) {
	var tagUIDs []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&ChatTagModel{}).
		Where("chat_uid = ?", chatUID).
		Pluck("tag_uid", &tagUIDs).Error; err != nil {
		return nil, err
	}
	return tagUIDs, nil
}
