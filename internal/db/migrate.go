package db

import (
	"immofeed/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.Source{},
		&models.IngestionJob{},
		&models.Listing{},
		&models.OptOutRequest{},
	)
}
