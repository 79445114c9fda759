package copier_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/s3shift/internal/copier"
)

func statsServer(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/core/stats", r.URL.Path)
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Port()
}

func client() copier.StatsClient {
	return copier.NewStatsClient(&http.Client{
		Transport: &http.Transport{DisableKeepAlives: true},
	})
}

func TestStatsClientDecodes(t *testing.T) {
	port := statsServer(t, http.StatusOK, "{\"bytes\": 1234, \"speed\": 12.5, \"transfers\": 3, \"totalBytes\": 5000}\x00\x00")

	stats, err := client().Stats(context.Background(), port)
	require.NoError(t, err)
	require.Equal(t, int64(1234), stats.Bytes)
	require.Equal(t, int64(5000), stats.TotalBytes)
	require.Equal(t, int64(3), stats.Transfers)
	require.Equal(t, 12.5, stats.Speed)
}

func TestStatsClientRejectsBadReplies(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"no byte count", http.StatusOK, `{"speed": 1}`},
		{"not json", http.StatusOK, `transferring`},
		{"server error", http.StatusInternalServerError, `{"bytes": 1}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			port := statsServer(t, tc.status, tc.body)
			_, err := client().Stats(context.Background(), port)
			require.Error(t, err)
		})
	}
}
