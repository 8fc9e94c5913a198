package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pdfrag/internal/model"
)

func New(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get postgres sql db failed: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres failed: %w", err)
	}

	return db, nil
}

// Migrate creates the tables, the pgvector column with the given dimension
// and its cosine HNSW index.
func Migrate(ctx context.Context, db *gorm.DB, dims int) error {
	db = db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension failed: %w", err)
	}
	if err := db.AutoMigrate(&model.Document{}, &model.DocumentPage{}); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}

	stmts := []string{
		fmt.Sprintf("ALTER TABLE document_pages ADD COLUMN IF NOT EXISTS embedding vector(%d)", dims),
		"CREATE INDEX IF NOT EXISTS idx_document_pages_embedding ON document_pages USING hnsw (embedding vector_cosine_ops)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate embedding column failed: %w", err)
		}
	}
	return nil
}
