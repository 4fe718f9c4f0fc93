// Package relay buffers attendance records pushed by terminals,
// enriches them and flushes them to the backend on a fixed interval.
package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/zaqqye/term_gateway_v1/internal/directory"
	"github.com/zaqqye/term_gateway_v1/internal/metric"
	"github.com/zaqqye/term_gateway_v1/internal/models"
)

// Backend ingests one batch of enriched records.
type Backend interface {
	Ingest(ctx context.Context, records []map[string]any) error
}

// Geocoder resolves coordinates to a human-readable address.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

type Relay struct {
	mu  sync.Mutex
	buf []map[string]any

	backend  Backend
	geo      Geocoder // nil disables address resolution
	dir      *directory.Directory
	db       *gorm.DB // nil disables the audit store
	interval time.Duration
	metrics  *metric.Metrics
}

func New(backend Backend, geo Geocoder, dir *directory.Directory, db *gorm.DB, interval time.Duration, m *metric.Metrics) *Relay {
	return &Relay{
		backend:  backend,
		geo:      geo,
		dir:      dir,
		db:       db,
		interval: interval,
		metrics:  m,
	}
}

// Submit enriches the batch, appends it to the buffer and returns the
// enriched records so the caller can forward them to a viewer. The
// eventual backend delivery happens on the flush cycle, never here.
func (r *Relay) Submit(serial string, records []map[string]any) []map[string]any {
	enriched := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		enriched = append(enriched, r.enrich(serial, rec))
	}

	r.mu.Lock()
	r.buf = append(r.buf, enriched...)
	r.metrics.LogsBuffered.Set(float64(len(r.buf)))
	r.mu.Unlock()
	return enriched
}

// Buffered reports the number of records awaiting delivery.
func (r *Relay) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Run drives the flush cycle until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Flush takes the whole buffer as one batch and attempts delivery. A
// failed batch goes back at the front of the buffer so it retries
// before anything received since; there is no backoff and no retry
// cap.
func (r *Relay) Flush(ctx context.Context) {
	r.mu.Lock()
	if len(r.buf) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.buf
	r.buf = nil
	r.metrics.LogsBuffered.Set(0)
	r.mu.Unlock()

	if err := r.backend.Ingest(ctx, batch); err != nil {
		log.Printf("relay: flush of %d records failed, will retry: %v", len(batch), err)
		r.mu.Lock()
		r.buf = append(batch, r.buf...)
		r.metrics.LogsBuffered.Set(float64(len(r.buf)))
		r.mu.Unlock()
		r.metrics.FlushTotal.WithLabelValues("failure").Inc()
		return
	}

	r.metrics.FlushTotal.WithLabelValues("success").Inc()
	r.persist(batch)
}

// persist writes a delivered batch to the append-only audit table.
// Best effort: an audit failure never resurrects the batch.
func (r *Relay) persist(batch []map[string]any) {
	if r.db == nil {
		return
	}
	rows := make([]models.AttendanceLog, 0, len(batch))
	for _, rec := range batch {
		payload, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		row := models.AttendanceLog{
			SerialNumber: stringField(rec, "sn"),
			EnrollID:     intField(rec, "enrollid"),
			ModeLabel:    stringField(rec, "mode_label"),
			ReceivedAt:   receivedAt(rec),
			Payload:      string(payload),
		}
		if lat, ok := rec["latitude"].(float64); ok {
			row.Latitude = &lat
		}
		if lon, ok := rec["longitude"].(float64); ok {
			row.Longitude = &lon
		}
		if addr, ok := rec["address"].(string); ok {
			row.Address = &addr
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return
	}
	if err := r.db.Create(&rows).Error; err != nil {
		log.Printf("relay: audit persist failed for %d rows: %v", len(rows), err)
	}
}

func receivedAt(rec map[string]any) time.Time {
	if s, ok := rec["received_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
