package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPBackend delivers batches to the ingestion endpoint as a single
// JSON POST.
type HTTPBackend struct {
	endpoint string
	client   *http.Client
}

func NewHTTPBackend(endpoint string) *HTTPBackend {
	return &HTTPBackend{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (b *HTTPBackend) Ingest(ctx context.Context, records []map[string]any) error {
	body, err := json.Marshal(map[string]any{"logs": records})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/attendance-logs", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return nil
}
