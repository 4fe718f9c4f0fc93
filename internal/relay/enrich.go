package relay

import (
	"context"
	"log"
	"time"

	"github.com/zaqqye/term_gateway_v1/internal/utils"
)

var modeLabels = map[int64]string{
	10: "PIN",
	11: "Card",
	50: "Face",
}

// ModeLabel maps a terminal mode code to its human label. Codes 0-9
// are the ten fingerprint slots.
func ModeLabel(code int64) string {
	if code >= 0 && code <= 9 {
		return "Fingerprint"
	}
	if label, ok := modeLabels[code]; ok {
		return label
	}
	return "Unknown"
}

// enrich produces the backend form of one raw record: directory names
// when the serial is known, parsed coordinates and a best-effort
// address, the mode label and a reception timestamp. A record is never
// rejected here; every enrichment failure degrades to a null field.
func (r *Relay) enrich(serial string, rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec)+7)
	for k, v := range rec {
		out[k] = v
	}
	out["sn"] = serial

	if entry, ok := r.dir.Lookup(serial); ok {
		out["company"] = entry.CompanyName
		out["site"] = entry.SiteName
	}

	var latitude, longitude, address any
	if ev, ok := rec["event"].(string); ok {
		if lat, lon, parsed := utils.ParseLatLon(ev); parsed {
			latitude, longitude = lat, lon
			if r.geo != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				addr, err := r.geo.Reverse(ctx, lat, lon)
				cancel()
				if err != nil {
					log.Printf("relay: reverse geocode (%f,%f) failed: %v", lat, lon, err)
				} else {
					address = addr
				}
			}
		}
	}
	out["latitude"] = latitude
	out["longitude"] = longitude
	out["address"] = address

	if _, ok := rec["mode"]; ok {
		out["mode_label"] = ModeLabel(intField(rec, "mode"))
	} else {
		out["mode_label"] = "Unknown"
	}
	out["received_at"] = time.Now().UTC().Format(time.RFC3339)
	return out
}
