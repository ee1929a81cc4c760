package models

import (
	"github.com/maisonops/boutique_backend/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	db := config.GetDB()
	if err := Migrate(db); err != nil {
		config.GetLogger().Error("migration error: " + err.Error())
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ReceiveEvent{}, &SaleEvent{},
		&CustomerProfile{}, &ProcessingStatus{},
		&AnalysisSnapshot{},
		&SyncRun{}, &SyncError{},
		&User{},
	)
}
