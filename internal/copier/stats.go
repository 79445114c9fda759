package copier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Stats is the subset of the copier's core/stats response that the
// supervisor uses.
type Stats struct {
	Bytes       int64
	TotalBytes  int64
	Transfers   int64
	Errors      int64
	Speed       float64
	ElapsedTime float64
}

// StatsClient reads transfer statistics from a running copier.
type StatsClient interface {
	Stats(ctx context.Context, port string) (Stats, error)
}

type rcStats struct {
	Bytes       *int64  `json:"bytes"`
	TotalBytes  int64   `json:"totalBytes"`
	Transfers   int64   `json:"transfers"`
	Errors      int64   `json:"errors"`
	Speed       float64 `json:"speed"`
	ElapsedTime float64 `json:"elapsedTime"`
}

type httpStats struct {
	client *http.Client
	host   string
}

// NewStatsClient returns a client for the copier's remote-control endpoint
// on localhost. A nil client gets one with a short timeout.
func NewStatsClient(client *http.Client) StatsClient {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &httpStats{client: client, host: "localhost"}
}

func (s *httpStats) Stats(ctx context.Context, port string) (Stats, error) {
	url := fmt.Sprintf("http://%s:%s/core/stats", s.host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return Stats{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Stats{}, fmt.Errorf("querying copier stats: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Stats{}, fmt.Errorf("reading copier stats: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Stats{}, fmt.Errorf("copier stats: %s", resp.Status)
	}

	return decodeStats(body)
}

func decodeStats(body []byte) (Stats, error) {
	// some copier builds pad the response with NUL bytes
	body = bytes.ReplaceAll(body, []byte{0}, nil)

	var rc rcStats
	if err := json.Unmarshal(body, &rc); err != nil {
		return Stats{}, fmt.Errorf("decoding copier stats: %w", err)
	}
	if rc.Bytes == nil {
		return Stats{}, fmt.Errorf("copier stats has no byte count")
	}

	return Stats{
		Bytes:       *rc.Bytes,
		TotalBytes:  rc.TotalBytes,
		Transfers:   rc.Transfers,
		Errors:      rc.Errors,
		Speed:       rc.Speed,
		ElapsedTime: rc.ElapsedTime,
	}, nil
}
