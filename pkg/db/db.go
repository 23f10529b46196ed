package db

import (
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/converso-ai/chat-backend/config"
)

var db *gorm.DB
var once sync.Once

// GetSharedConnection returns the process-wide gorm connection, opening it on
// first use with the pool settings from the configuration.
func GetSharedConnection() *gorm.DB {
	once.Do(func() {
		databaseConfig := config.Config.Database
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=%s",
			databaseConfig.Host,
			databaseConfig.Username,
			databaseConfig.Password,
			databaseConfig.Name,
			databaseConfig.Port,
			databaseConfig.TimeZone,
		)

		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			QueryFields: true, // QueryFields mode will select by all fields' name for current model
			Logger:      gormLogger.Default.LogMode(gormLogger.Warn),
		})
		if err != nil {
			log.Fatalf("connecting to database: %v", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			log.Fatalf("accessing sql.DB: %v", err)
		}

		sqlDB.SetMaxIdleConns(databaseConfig.Pool.IdleConnections)
		sqlDB.SetMaxOpenConns(databaseConfig.Pool.MaxConnections)
		sqlDB.SetConnMaxLifetime(time.Duration(databaseConfig.Pool.ConnLifeTime))
	})

	return db
}
