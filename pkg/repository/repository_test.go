package repository

import (
	"fmt"
	"strings"

	qt "github.com/frankban/quicktest"
	"github.com/gofrs/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// The test schema mirrors the Postgres migrations with sqlite-compatible
// column types (array columns become TEXT, which the custom scanners
// handle).
var testSchema = []string{
	`CREATE TABLE "user" (
		uid TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		create_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		update_time DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE auth (
		user_uid TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		active BOOL NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE knowledge_base (
		uid TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		tags TEXT,
		owner TEXT NOT NULL,
		creator_uid TEXT NOT NULL,
		create_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		update_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		delete_time DATETIME
	)`,
	`CREATE TABLE chat (
		uid TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		title TEXT NOT NULL,
		archived BOOL NOT NULL DEFAULT FALSE,
		pinned BOOL NOT NULL DEFAULT FALSE,
		create_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		update_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		delete_time DATETIME
	)`,
	`CREATE TABLE file (
		uid TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		destination TEXT,
		content_hash TEXT,
		size INTEGER NOT NULL DEFAULT 0,
		create_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		update_time DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE knowledge_base_file (
		kb_uid TEXT NOT NULL,
		file_uid TEXT NOT NULL,
		create_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (kb_uid, file_uid)
	)`,
	`CREATE TABLE chat_file (
		chat_uid TEXT NOT NULL,
		file_uid TEXT NOT NULL,
		create_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (chat_uid, file_uid)
	)`,
	`CREATE TABLE tag (
		uid TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE chat_tag (
		chat_uid TEXT NOT NULL,
		tag_uid TEXT NOT NULL,
		PRIMARY KEY (chat_uid, tag_uid)
	)`,
	`CREATE TABLE model_def (
		uid TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		base_model TEXT NOT NULL,
		create_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		update_time DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE model_def_knowledge (
		model_def_uid TEXT NOT NULL,
		kb_uid TEXT NOT NULL,
		PRIMARY KEY (model_def_uid, kb_uid)
	)`,
	`CREATE TABLE memory (
		uid TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		content TEXT NOT NULL,
		create_time DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE message (
		uid TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		chat_uid TEXT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		create_time DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

// newTestRepository opens an isolated in-memory database per test.
func newTestRepository(c *qt.C) Repository {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(c.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	c.Assert(err, qt.IsNil)

	for _, stmt := range testSchema {
		c.Assert(db.Exec(stmt).Error, qt.IsNil)
	}

	c.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return NewRepository(db)
}

func newUID() uuid.UUID {
	return uuid.Must(uuid.NewV4())
}
