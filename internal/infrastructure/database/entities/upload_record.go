package entities

import "time"

// UploadRecord represents the persisted upload metadata.
type UploadRecord struct {
	ID               string    `gorm:"type:varchar(40);primaryKey"`
	OwnerID          string    `gorm:"type:varchar(64);not null;index:idx_upload_owner_created,priority:1;index:idx_upload_owner_local,priority:1"`
	OwnerDisplayName string    `gorm:"type:varchar(255)"`
	Location         string    `gorm:"type:text;not null"`
	StorageBackend   string    `gorm:"type:varchar(32);not null"`
	StorageKey       string    `gorm:"type:varchar(512)"`
	DeletionToken    string    `gorm:"type:text"`
	LocalID          string    `gorm:"type:varchar(16);index:idx_upload_owner_local,priority:2"`
	ContentType      string    `gorm:"type:varchar(64);not null"`
	Bytes            int64     `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null;index:idx_upload_owner_created,priority:2,sort:desc"`
}

func (UploadRecord) TableName() string {
	return "upload_records"
}
