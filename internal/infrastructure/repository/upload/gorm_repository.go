package upload

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	domain "github.com/janhq/photo-bot/internal/domain/upload"
	"github.com/janhq/photo-bot/internal/infrastructure/database/entities"
	"github.com/janhq/photo-bot/internal/infrastructure/metrics"
)

const postgresBackend = "postgres"

// GormRepository persists upload records in PostgreSQL.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Insert(ctx context.Context, rec *domain.UploadRecord) error {
	start := time.Now()
	entity := toEntity(rec)
	err := r.db.WithContext(ctx).Create(&entity).Error
	metrics.RecordMetadataOperation(postgresBackend, "insert", err, time.Since(start).Seconds())
	if err != nil {
		return repositoryError(ctx, "failed to create upload record", err, "4c9b1e3a-5d7f-4a0b-8c4e-4a6c8e0a2b49")
	}
	return nil
}

func (r *GormRepository) ReplaceLatest(ctx context.Context, rec *domain.UploadRecord) ([]domain.UploadRecord, error) {
	start := time.Now()
	var displaced []entities.UploadRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ?", rec.OwnerID).Find(&displaced).Error; err != nil {
			return err
		}
		entity := toEntity(rec)
		if err := tx.Create(&entity).Error; err != nil {
			return err
		}
		return tx.Where("owner_id = ? AND id <> ?", rec.OwnerID, rec.ID).Delete(&entities.UploadRecord{}).Error
	})
	metrics.RecordMetadataOperation(postgresBackend, "replace_latest", err, time.Since(start).Seconds())
	if err != nil {
		return nil, repositoryError(ctx, "failed to replace latest upload record", err, "5d0c2f4b-6e8a-4b1c-9d5f-5b7d9f1b3c50")
	}
	if len(displaced) == 0 {
		return nil, nil
	}
	return mapEntities(displaced), nil
}

func (r *GormRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.UploadRecord, error) {
	start := time.Now()
	var rows []entities.UploadRecord
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	metrics.RecordMetadataOperation(postgresBackend, "list", err, time.Since(start).Seconds())
	if err != nil {
		return nil, repositoryError(ctx, "failed to list upload records", err, "6e1d3a5c-7f9b-4c2d-8e6a-6c8e0a2c4d61")
	}
	return mapEntities(rows), nil
}

func (r *GormRepository) DeleteOwned(ctx context.Context, ownerID, ref string) (*domain.UploadRecord, error) {
	start := time.Now()
	var found *entities.UploadRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entity entities.UploadRecord
		err := tx.Where("owner_id = ? AND (local_id = ? OR location = ? OR id = ?)", ownerID, ref, ref, ref).
			Order("created_at DESC").
			Order("id DESC").
			First(&entity).Error
		if err != nil {
			return err
		}
		if err := tx.Where("id = ? AND owner_id = ?", entity.ID, ownerID).Delete(&entities.UploadRecord{}).Error; err != nil {
			return err
		}
		found = &entity
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.RecordMetadataOperation(postgresBackend, "delete", nil, time.Since(start).Seconds())
		return nil, nil
	}
	metrics.RecordMetadataOperation(postgresBackend, "delete", err, time.Since(start).Seconds())
	if err != nil {
		return nil, repositoryError(ctx, "failed to delete upload record", err, "7f2e4b6d-8a0c-4d3e-9f7b-7d9f1b3d5e72")
	}
	rec := mapEntity(*found)
	return &rec, nil
}

// Ping checks the database connection.
func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func toEntity(rec *domain.UploadRecord) entities.UploadRecord {
	return entities.UploadRecord{
		ID:               rec.ID,
		OwnerID:          rec.OwnerID,
		OwnerDisplayName: rec.OwnerDisplayName,
		Location:         rec.Location,
		StorageBackend:   rec.StorageBackend,
		StorageKey:       rec.StorageKey,
		DeletionToken:    rec.DeletionToken,
		LocalID:          rec.LocalID,
		ContentType:      rec.ContentType,
		Bytes:            rec.Bytes,
		CreatedAt:        rec.CreatedAt,
	}
}

func mapEntity(entity entities.UploadRecord) domain.UploadRecord {
	return domain.UploadRecord{
		ID:               entity.ID,
		OwnerID:          entity.OwnerID,
		OwnerDisplayName: entity.OwnerDisplayName,
		Location:         entity.Location,
		StorageBackend:   entity.StorageBackend,
		StorageKey:       entity.StorageKey,
		DeletionToken:    entity.DeletionToken,
		LocalID:          entity.LocalID,
		ContentType:      entity.ContentType,
		Bytes:            entity.Bytes,
		CreatedAt:        entity.CreatedAt.UTC(),
	}
}

func mapEntities(rows []entities.UploadRecord) []domain.UploadRecord {
	records := make([]domain.UploadRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, mapEntity(row))
	}
	return records
}
