package models

import "time"

// AttendanceLog is the append-only audit row written after a log batch
// has been accepted by the backend. Payload keeps the full enriched
// record as JSON; the indexed columns are extracted for queries.
type AttendanceLog struct {
	ID           uint   `gorm:"primaryKey"`
	SerialNumber string `gorm:"index;size:64"`
	EnrollID     int64  `gorm:"index"`
	ModeLabel    string `gorm:"size:32"`
	Latitude     *float64
	Longitude    *float64
	Address      *string `gorm:"size:256"`
	ReceivedAt   time.Time
	Payload      string
	CreatedAt    time.Time
}
