package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/term_gateway_v1/internal/directory"
	"github.com/zaqqye/term_gateway_v1/internal/metric"
)

type fakeBackend struct {
	mu      sync.Mutex
	failing bool
	batches [][]map[string]any
}

func (b *fakeBackend) Ingest(_ context.Context, records []map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return errors.New("backend unavailable")
	}
	b.batches = append(b.batches, records)
	return nil
}

func (b *fakeBackend) setFailing(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = v
}

type fakeGeocoder struct {
	addr string
	err  error
}

func (g *fakeGeocoder) Reverse(context.Context, float64, float64) (string, error) {
	return g.addr, g.err
}

func testDirectory() *directory.Directory {
	return directory.Static([]directory.Entry{
		{SerialNumber: "SN1", CompanyName: "Acme", SiteName: "HQ"},
	})
}

func newTestRelay(backend Backend, geo Geocoder) *Relay {
	return New(backend, geo, testDirectory(), nil, time.Hour, metric.NewMetrics())
}

func TestSubmitBuffersAndReturnsEnriched(t *testing.T) {
	backend := &fakeBackend{}
	r := newTestRelay(backend, nil)

	enriched := r.Submit("SN1", []map[string]any{
		{"enrollid": float64(12), "mode": float64(0), "event": "25.2048,55.2708"},
	})

	require.Len(t, enriched, 1)
	assert.Equal(t, 1, r.Buffered())
	assert.Empty(t, backend.batches, "submit never delivers; only the flush cycle does")

	rec := enriched[0]
	assert.Equal(t, "SN1", rec["sn"])
	assert.Equal(t, "Acme", rec["company"])
	assert.Equal(t, "HQ", rec["site"])
	assert.Equal(t, "Fingerprint", rec["mode_label"])
	assert.Equal(t, 25.2048, rec["latitude"])
	assert.Equal(t, 55.2708, rec["longitude"])
	assert.Nil(t, rec["address"], "no geocoder configured")
	assert.NotEmpty(t, rec["received_at"])
}

func TestFlushDeliversAndClearsBuffer(t *testing.T) {
	backend := &fakeBackend{}
	r := newTestRelay(backend, nil)

	r.Submit("SN1", []map[string]any{{"enrollid": float64(1)}})
	r.Flush(context.Background())

	assert.Zero(t, r.Buffered())
	require.Len(t, backend.batches, 1)
	require.Len(t, backend.batches[0], 1)
}

func TestFailedFlushRetriesAheadOfNewerRecords(t *testing.T) {
	backend := &fakeBackend{}
	r := newTestRelay(backend, nil)

	r.Submit("SN1", []map[string]any{{"enrollid": float64(1)}})
	backend.setFailing(true)
	r.Flush(context.Background())
	assert.Equal(t, 1, r.Buffered(), "failed batch re-inserted")

	// Records arriving after the failure queue behind the failed batch.
	r.Submit("SN1", []map[string]any{{"enrollid": float64(2)}})
	backend.setFailing(false)
	r.Flush(context.Background())

	require.Len(t, backend.batches, 1)
	batch := backend.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, float64(1), batch[0]["enrollid"], "earliest-first retry order")
	assert.Equal(t, float64(2), batch[1]["enrollid"])
	assert.Zero(t, r.Buffered())
}

func TestFlushSkipsEmptyBuffer(t *testing.T) {
	backend := &fakeBackend{}
	r := newTestRelay(backend, nil)
	r.Flush(context.Background())
	assert.Empty(t, backend.batches)
}

func TestRunFlushesOnInterval(t *testing.T) {
	backend := &fakeBackend{}
	r := New(backend, nil, testDirectory(), nil, 10*time.Millisecond, metric.NewMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Submit("SN1", []map[string]any{{"enrollid": float64(3)}})
	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.batches) == 1
	}, time.Second, 5*time.Millisecond)
}
