package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus7i/ulinks/internal"
)

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/8.8.8.8":
			w.Write([]byte(`{"success":true,"country":"United States","connection":{"isp":"Google LLC"}}`))
		case "/10.0.0.1":
			w.Write([]byte(`{"success":false,"message":"Reserved range"}`))
		case "/1.2.3.4":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/5.6.7.8":
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{"success":true}`))
		default:
			w.Write([]byte(`{"success":true}`))
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL+"/", 100*time.Millisecond)
	ctx := context.Background()

	got, err := client.Fetch(ctx, "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "Google LLC", got.ISP)
	assert.Equal(t, "United States", got.Country)

	got, err = client.Fetch(ctx, "9.9.9.9")
	require.NoError(t, err)
	assert.Equal(t, internal.Unknown, got.ISP)

	for _, ip := range []string{"10.0.0.1", "1.2.3.4", "5.6.7.8"} {
		_, err := client.Fetch(ctx, ip)
		assert.ErrorIs(t, err, internal.ErrUpstream, ip)
	}
}
