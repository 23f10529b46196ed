package repository

import (
	"gorm.io/gorm"
)

// Repository aggregates the data access interfaces consumed by the service
// layer and the deletion engine.
type Repository interface {
	KnowledgeBaseI
	ChatI
	FileI
	TagI
	ModelDefI
	UserI
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a Repository backed by the given gorm connection.
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}
