// Package repositories provides the data access layer. It owns every query
// and mutation against Postgres and the Redis cache.
package repositories

import (
	"fmt"
	"log"
	"os"
	"time"

	"crest/internal/config"
	"crest/internal/models"
	"crest/internal/repositories/cache"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DBConfig holds database connection pool configuration
type DBConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

var dbConfig = DBConfig{
	MaxIdleConns:    10,
	MaxOpenConns:    100,
	ConnMaxLifetime: time.Hour,
	ConnMaxIdleTime: time.Minute * 30,
}

// InitDB opens the Postgres connection, applies migrations and configures
// pooling. Transfer and balance rows live here; nothing settlement-critical
// is held in memory only.
func InitDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		config.GetEnv("DB_HOST", "localhost"),
		config.GetEnv("DB_USER", "postgres"),
		config.GetEnv("DB_PASSWORD", "postgres"),
		config.GetEnv("DB_NAME", "crest"),
		config.GetEnv("DB_PORT", "5432"),
	)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(dbConfig.ConnMaxIdleTime)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Wallet{},
		&models.Transfer{},
		&models.TransactionRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	// The one-open-withdrawal-per-wallet invariant is enforced by the
	// database itself, not only by application checks: concurrent creations
	// that slip past the in-transaction count fail on this index.
	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_transfers_one_open_withdrawal
		 ON transfers (wallet_id)
		 WHERE kind = 'withdrawal' AND status IN ('waiting_step1', 'waiting_step2')`,
	).Error; err != nil {
		return nil, fmt.Errorf("failed to create withdrawal exclusivity index: %w", err)
	}

	return db, nil
}

// InitCache connects to Redis and wraps it in the cache service.
func InitCache() (*redis.Client, *cache.CacheService) {
	client := cache.NewRedisClient(&cache.RedisConfig{
		Host:     config.GetEnv("REDIS_HOST", "localhost"),
		Port:     config.GetEnv("REDIS_PORT", "6379"),
		Password: config.GetEnv("REDIS_PASSWORD", ""),
		DB:       config.GetIntEnv("REDIS_DB", 0),
	})
	return client, cache.NewCacheService(client, 24*time.Hour)
}
