package models

import "time"

// Device is one row of the device/company directory. The table is
// loaded once at startup and treated as read-only by the gateway.
type Device struct {
	ID           uint   `gorm:"primaryKey"`
	SerialNumber string `gorm:"uniqueIndex;size:64"`
	CompanyName  string `gorm:"size:128"`
	SiteName     string `gorm:"size:128"`
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
