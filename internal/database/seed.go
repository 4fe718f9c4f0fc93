package database

import (
	"log"

	"gorm.io/gorm"

	"github.com/zaqqye/term_gateway_v1/internal/models"
)

// SeedDevices inserts a demo directory when the devices table is
// empty, so a fresh install can resolve terminal serials right away.
func SeedDevices(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Device{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	devices := []models.Device{
		{SerialNumber: "ZXH1234567890", CompanyName: "Demo Company", SiteName: "Head Office", Active: true},
		{SerialNumber: "ZXH0987654321", CompanyName: "Demo Company", SiteName: "Warehouse", Active: true},
	}
	for _, d := range devices {
		if err := db.Create(&d).Error; err != nil {
			return err
		}
	}
	log.Println("Seeded demo device directory:", len(devices), "entries")
	return nil
}
