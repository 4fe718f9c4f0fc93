// Package directory holds the device/company lookup consumed by the
// log relay. It is loaded once at startup and read-only afterwards, so
// lookups need no locking.
package directory

import (
	"gorm.io/gorm"

	"github.com/zaqqye/term_gateway_v1/internal/models"
)

type Entry struct {
	SerialNumber string
	CompanyName  string
	SiteName     string
}

type Directory struct {
	bySerial map[string]Entry
}

// Load reads every active device row into memory.
func Load(db *gorm.DB) (*Directory, error) {
	var devices []models.Device
	if err := db.Where("active = ?", true).Find(&devices).Error; err != nil {
		return nil, err
	}
	d := &Directory{bySerial: make(map[string]Entry, len(devices))}
	for _, dev := range devices {
		d.bySerial[dev.SerialNumber] = Entry{
			SerialNumber: dev.SerialNumber,
			CompanyName:  dev.CompanyName,
			SiteName:     dev.SiteName,
		}
	}
	return d, nil
}

// Static builds a directory from a fixed entry list. Used by tests and
// by deployments that run without a database.
func Static(entries []Entry) *Directory {
	d := &Directory{bySerial: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		d.bySerial[e.SerialNumber] = e
	}
	return d
}

func (d *Directory) Lookup(serial string) (Entry, bool) {
	if d == nil {
		return Entry{}, false
	}
	e, ok := d.bySerial[serial]
	return e, ok
}

func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.bySerial)
}
