package database

import (
	"log"

	"backend/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto-migrate core models
	err = db.AutoMigrate(
		&model.Transaction{},
		&model.TransactionActivity{},
		&model.SongRequest{},
		&model.VenueTaxProfile{},
		&model.WarpPackage{},
	)
	if err != nil {
		log.Println("WARNING: Failed to auto-migrate models:", err)
	}

	seedPackages(db)

	return db, nil
}

// seedPackages inserts the default duration/price catalog when the table is
// empty so a fresh install has something to sell.
func seedPackages(db *gorm.DB) {
	var count int64
	if err := db.Model(&model.WarpPackage{}).Count(&count).Error; err != nil || count > 0 {
		return
	}

	defaults := []model.WarpPackage{
		{Name: "Quick Shout", DisplaySeconds: 15, Price: decimal.NewFromInt(50), Currency: "THB", Active: true},
		{Name: "Standard Warp", DisplaySeconds: 30, Price: decimal.NewFromInt(100), Currency: "THB", Active: true},
		{Name: "Long Warp", DisplaySeconds: 60, Price: decimal.NewFromInt(180), Currency: "THB", Active: true},
		{Name: "Mega Warp", DisplaySeconds: 120, Price: decimal.NewFromInt(300), Currency: "THB", Active: true},
	}
	if err := db.Create(&defaults).Error; err != nil {
		log.Println("WARNING: Failed to seed warp packages:", err)
	}
}
