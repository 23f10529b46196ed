package repository

import (
	"context"

	"github.com/converso-ai/chat-backend/pkg/types"
)

// TagI covers tag queries. CountLiveChatsByTagUID is an exact count, not a
// cached counter: a tag is unused exactly when no non-soft-deleted chat
// still carries it.
type TagI interface {
	CreateTag(ctx context.Context, tag TagModel) (*TagModel, error)
	CountLiveChatsByTagUID(ctx context.Context, tagUID types.TagUIDType) (int64, error)
	DeleteTag(ctx context.Context, tagUID types.TagUIDType) (int64, error)
}

// CreateTag inserts a new tag record into the database.
func (r *repository) CreateTag(ctx context.Context, tag TagModel) (*TagModel, error) {
	if err := r.db.WithContext(ctx).Create(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// CountLiveChatsByTagUID counts the chats that carry the tag and are not
// soft-deleted. Soft-deleted chats are excluded so tag cleanup during their
// reconciliation sees them as already gone.
func (r *repository) CountLiveChatsByTagUID(ctx context.Context, tagUID types.TagUIDType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ChatTagModel{}).
		Joins("JOIN chat ON chat.uid = chat_tag.chat_uid").
		Where("chat_tag.tag_uid = ? AND chat.delete_time IS NULL", tagUID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteTag removes a tag row and returns the affected count.
func (r *repository) DeleteTag(ctx context.Context, tagUID types.TagUIDType) (int64, error) {
	result := r.db.WithContext(ctx).Where("uid = ?", tagUID).Delete(&TagModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
