package repository

import (
	"context"

	"github.com/converso-ai/chat-backend/pkg/types"
)

// ModelDefI covers the model definition queries used by the deletion engine.
// Model definitions reference knowledge bases through the
// model_def_knowledge junction, a typed, always-present set, so stripping a
// deleted knowledge base never needs capability probing.
type ModelDefI interface {
	CreateModelDef(ctx context.Context, def ModelDefModel) (*ModelDefModel, error)
	LinkKnowledgeBaseToModelDef(ctx context.Context, modelUID types.ModelUIDType, kbUID types.KBUIDType) error
	ListModelDefsByKnowledgeBaseUID(ctx context.Context, kbUID types.KBUIDType) ([]ModelDefModel, error)
	// RemoveKnowledgeBaseFromModelDefs strips the knowledge base UID from
	// every model definition referencing it and returns the number of
	// updated definitions.
	RemoveKnowledgeBaseFromModelDefs(ctx context.Context, kbUID types.KBUIDType) (int64, error)
}

// CreateModelDef inserts a new model definition record into the database.
func (r *repository) CreateModelDef(ctx context.Context, def ModelDefModel) (*ModelDefModel, error) {
	if err := r.db.WithContext(ctx).Create(&def).Error; err != nil {
		return nil, err
	}
	return &def, nil
}

// LinkKnowledgeBaseToModelDef inserts a junction row between a model
// definition and a knowledge base.
func (r *repository) LinkKnowledgeBaseToModelDef(ctx context.Context, modelUID types.ModelUIDType, kbUID types.KBUIDType) error {
	link := ModelDefKnowledgeModel{ModelDefUID: modelUID, KbUID: kbUID}
	return r.db.WithContext(ctx).Create(&link).Error
}

// ListModelDefsByKnowledgeBaseUID returns every model definition that
// references the given knowledge base.
func (r *repository) ListModelDefsByKnowledgeBaseUID(ctx context.Context, kbUID types.KBUIDType) ([]ModelDefModel, error) {
	var defs []ModelDefModel
	junction := r.db.Model(&ModelDefKnowledgeModel{}).
		Select("model_def_uid").
		Where("kb_uid = ?", kbUID)
	if err := r.db.WithContext(ctx).
		Where("uid IN (?)", junction).
		Find(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}

// RemoveKnowledgeBaseFromModelDefs removes the knowledge base from every
// model definition referencing it. The junction's primary key holds one row
// per definition and knowledge base, so a single atomic DELETE suffices and
// its affected row count is the number of detached definitions.
func (r *repository) RemoveKnowledgeBaseFromModelDefs(ctx context.Context, kbUID types.KBUIDType) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("kb_uid = ?", kbUID).
		Delete(&ModelDefKnowledgeModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
