package scanner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = `{"data":[
 {"symbol":"NIFTY","lastPrice":23500,"pChange":1.5,"totalTradedVolume":90000000},
 {"symbol":"SBIN","lastPrice":825.4,"pChange":0.9,"totalTradedVolume":8000000,"previousClose":818},
 {"symbol":"TATAMOTORS","lastPrice":"945.80","pChange":"1.2","totalTradedVolume":"5,000,000"},
 {"symbol":"IDEA","lastPrice":8.1,"pChange":3.0,"totalTradedVolume":900000000},
 {"symbol":"ITC","lastPrice":470,"pChange":0.1,"totalTradedVolume":9000000},
 {"symbol":"WIPRO","lastPrice":300,"pChange":0.5,"totalTradedVolume":50000}
]}`

func nseServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "x"})
	})
	mux.HandleFunc("/api/equity-stockIndices", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestScanner(srv *httptest.Server, max int) *NSEScanner {
	return NewNSEScanner(NSEConfig{
		HomeURL:    srv.URL + "/",
		URL:        srv.URL + "/api/equity-stockIndices?index=SECURITIES%20IN%20F%26O",
		MinPrice:   100,
		MaxResults: max,
		Logger:     zerolog.Nop(),
	})
}

func TestNSEScanner_LongBuildUpRanking(t *testing.T) {
	s := newTestScanner(nseServer(t, http.StatusOK, feed), 5)

	got, err := s.Candidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceBuildUp, s.LastSource())

	// SBIN 0.9*8 = 7.2, TATAMOTORS 1.2*5 = 6.0, WIPRO fails volume, ITC fails change,
	// IDEA fails price, NIFTY is an index.
	require.Len(t, got, 2)
	assert.Equal(t, "SBIN", got[0].Symbol)
	assert.InDelta(t, 7.2, got[0].Score, 1e-9)
	assert.Equal(t, 818.0, got[0].PrevClose)
	assert.Equal(t, "TATAMOTORS", got[1].Symbol)
	assert.Equal(t, int64(5000000), got[1].Volume)
}

func TestNSEScanner_TopN(t *testing.T) {
	s := newTestScanner(nseServer(t, http.StatusOK, feed), 1)
	got, err := s.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestNSEScanner_FallsBackToGainers(t *testing.T) {
	body := `{"data":[
	 {"symbol":"ITC","lastPrice":470,"pChange":0.1,"totalTradedVolume":9000000},
	 {"symbol":"WIPRO","lastPrice":300,"pChange":0.15,"totalTradedVolume":50000},
	 {"symbol":"TCS","lastPrice":4000,"pChange":-0.4,"totalTradedVolume":50000}
	]}`
	s := newTestScanner(nseServer(t, http.StatusOK, body), 5)

	got, err := s.Candidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceGainers, s.LastSource())
	require.Len(t, got, 2)
	assert.Equal(t, "WIPRO", got[0].Symbol)
	assert.Equal(t, 0.15, got[0].Score)
	assert.Equal(t, "ITC", got[1].Symbol)
}

func TestNSEScanner_StaticFallback(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusForbidden, "denied"},
		{"bad json", http.StatusOK, "<html>"},
		{"empty data", http.StatusOK, `{"data":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScanner(nseServer(t, tt.status, tt.body), 2)
			got, err := s.Candidates(context.Background())
			require.NoError(t, err)
			assert.Equal(t, SourceFallback, s.LastSource())
			require.Len(t, got, 2)
			assert.Equal(t, "RELIANCE", got[0].Symbol)
			assert.Equal(t, "INFY", got[1].Symbol)
		})
	}
}

func TestNSEScanner_StaticFallbackHonorsMinPrice(t *testing.T) {
	s := NewNSEScanner(NSEConfig{MinPrice: 1500, MaxResults: 5, Logger: zerolog.Nop()})
	got := s.static()
	require.Len(t, got, 2)
	assert.Equal(t, "INFY", got[0].Symbol)
	assert.Equal(t, "HDFCBANK", got[1].Symbol)
}

func TestNSEScanner_CancelledContext(t *testing.T) {
	s := newTestScanner(nseServer(t, http.StatusOK, feed), 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Candidates(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
