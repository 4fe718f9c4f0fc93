package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPGeocoder resolves coordinates through an external reverse
// geocoding service returning {"address": "..."}.
type HTTPGeocoder struct {
	endpoint string
	client   *http.Client
}

func NewHTTPGeocoder(endpoint string) *HTTPGeocoder {
	return &HTTPGeocoder{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (g *HTTPGeocoder) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var out struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Address == "" {
		return "", fmt.Errorf("geocoder returned no address")
	}
	return out.Address, nil
}
