package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	errorsx "github.com/converso-ai/chat-backend/pkg/errors"
	"github.com/converso-ai/chat-backend/pkg/types"
)

// UserI covers the user queries used by the account purge cascade. The
// simple owned tables are deleted through one method each so the engine can
// isolate and report per-table failures without aborting the purge.
type UserI interface {
	GetUserByUID(ctx context.Context, userUID types.UserUIDType) (*UserModel, error)

	HardDeleteMemoriesByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteMessagesByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteChannelMembersByUser(ctx context.Context, userUID types.UserUIDType) (int64, error)
	HardDeleteTagsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteFoldersByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeletePromptsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteToolsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteFunctionsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteModelDefsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteFeedbackByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteNotesByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteOAuthSessionsByUser(ctx context.Context, userUID types.UserUIDType) (int64, error)
	HardDeleteGroupMembersByUser(ctx context.Context, userUID types.UserUIDType) (int64, error)

	HardDeleteAuthByUserUID(ctx context.Context, userUID types.UserUIDType) (int64, error)
	HardDeleteUser(ctx context.Context, userUID types.UserUIDType) (int64, error)
}

// GetUserByUID fetches a user by UID.
func (r *repository) GetUserByUID(ctx context.Context, userUID types.UserUIDType) (*UserModel, error) {
	var user UserModel
	if err := r.db.WithContext(ctx).Where("uid = ?", userUID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %v: %w", userUID, errorsx.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

// deleteWhere is the shared owned-row purge helper. All the per-table
// methods delegate to it so the purge behavior stays uniform.
func (r *repository) deleteWhere(ctx context.Context, model any, column string, uid any) (int64, error) {
	result := r.db.WithContext(ctx).Where(fmt.Sprintf("%v = ?", column), uid).Delete(model)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repository) HardDeleteMemoriesByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error) {
	return r.deleteWhere(ctx, &MemoryModel{}, "owner", owner)
}

func (r *repository) HardDeleteMessagesByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error) {
	return r.deleteWhere(ctx, &MessageModel{}, "owner", owner)
}

func (r *repository) HardDeleteChannelMembersByUser(ctx context.Context, userUID types.UserUIDType) (int64, error) {
	return r.deleteWhere(ctx, &ChannelMemberModel{}, "user_uid", userUID)
}

func (r *repository) HardDeleteTagsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error) {
	return r.deleteWhere(ctx, &TagModel{}, "owner", owner)
}

func (r *repository) HardDeleteFoldersByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error) {
	return r.deleteWhere(ctx, &FolderModel{}, "owner", owner)
}

func (r *repository) HardDeletePromptsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error) {
	return r.deleteWhere(ctx, &PromptModel{}, "owner", owner)
}

func (r *repository) HardDeleteToolsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error) {
	return r.deleteWhere(ctx, &ToolModel{}, "owner", owner)
}

func (r *repository) HardDeleteFunctionsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error) {
	return r.deleteWhere(ctx, &FunctionModel{}, "owner", owner)
}

// HardDeleteModelDefsByOwner removes the owner's model definitions together
// with their knowledge base junction rows, in one transaction. Returns the
// number of deleted definitions.
func (r *repository) HardDeleteModelDefsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&ModelDefModel{}).Select("uid").Where("owner = ?", owner)
		if err := tx.Where("model_def_uid IN (?)", owned).Delete(&ModelDefKnowledgeModel{}).Error; err != nil {
			return err
		}

		result := tx.Where("owner = ?", owner).Delete(&ModelDefModel{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *repository) HardDeleteFeedbackByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error) {
	return r.deleteWhere(ctx, &FeedbackModel{}, "owner", owner)
}

func (r *repository) HardDeleteNotesByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error) {
	return r.deleteWhere(ctx, &NoteModel{}, "owner", owner)
}

func (r *repository) HardDeleteOAuthSessionsByUser(ctx context.Context, userUID types.UserUIDType) (int64, error) {
	return r.deleteWhere(ctx, &OAuthSessionModel{}, "user_uid", userUID)
}

func (r *repository) HardDeleteGroupMembersByUser(ctx context.Context, userUID types.UserUIDType) (int64, error) {
	return r.deleteWhere(ctx, &GroupMemberModel{}, "user_uid", userUID)
}

// HardDeleteAuthByUserUID removes the user's login credential.
func (r *repository) HardDeleteAuthByUserUID(ctx context.Context, userUID types.UserUIDType) (int64, error) {
	return r.deleteWhere(ctx, &AuthModel{}, "user_uid", userUID)
}

// HardDeleteUser removes the user row itself. Must be called last in the
// account purge.
func (r *repository) HardDeleteUser(ctx context.Context, userUID types.UserUIDType) (int64, error) {
	return r.deleteWhere(ctx, &UserModel{}, "uid", userUID)
}
