package mpk

import (
	"context"
	"net/http"
	"sync/atomic"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpyk/mpyk/pkg/errors"
	"github.com/mpyk/mpyk/pkg/retry"
	"github.com/mpyk/mpyk/pkg/types"
	"github.com/mpyk/mpyk/pkg/utils"
)

var fetchTime = time.Date(2024, 1, 1, 11, 0, 0, 0, time.FixedZone("CET", 3600))

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		URL:       url,
		Timeout:   time.Second,
		BusLines:  []string{"A", "145"},
		TramLines: []string{"33"},
		Now:       func() time.Time { return fetchTime },
	}, utils.NopLogger())
	require.NoError(t, err)
	return c
}

func TestGetAllPositions(t *testing.T) {
	t.Parallel()

	var form map[string][]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		form = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"name":"33","type":"tram","x":51.1092,"y":17.0386,"k":8123},
			{"name":"a","type":"bus","x":51.08,"y":16.99,"k":20418},
			{"name":"x","type":"ferry","x":0,"y":0,"k":1}
		]`))
	}))
	defer ts.Close()

	positions, err := newTestClient(t, ts.URL).GetAllPositions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "145"}, form["busList[bus][]"])
	assert.Equal(t, []string{"33"}, form["busList[tram][]"])

	want := []types.Position{
		{VehicleID: "8123", Line: "33", Type: types.VehicleTypeTram, Latitude: 51.1092, Longitude: 17.0386,
			Timestamp: fetchTime.UTC()},
		{VehicleID: "20418", Line: "a", Type: types.VehicleTypeBus, Latitude: 51.08, Longitude: 16.99,
			Timestamp: fetchTime.UTC()},
	}
	assert.Equal(t, want, positions)
	assert.Equal(t, time.UTC, positions[0].Timestamp.Location())
}

func TestGetAllPositions_EmptyResponse(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	positions, err := newTestClient(t, ts.URL).GetAllPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestGetAllPositions_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>maintenance</html>`))
			},
		},
		{
			name: "wrong shape",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":"no lines"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			_, err := newTestClient(t, ts.URL).GetAllPositions(context.Background())
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeTransientFetch))
		})
	}
}

func TestGetAllPositions_Retry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failWith  int
		wantCalls int32
		wantErr   bool
	}{
		{"server error is retried", http.StatusServiceUnavailable, 2, false},
		{"client error is not retried", http.StatusNotFound, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(tt.failWith)
					return
				}
				_, _ = w.Write([]byte(`[{"name":"33","type":"tram","x":51.1,"y":17.0,"k":1}]`))
			}))
			defer ts.Close()

			c, err := NewClient(Config{
				URL:       ts.URL,
				TramLines: []string{"33"},
				Retry:     retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond},
			}, utils.NopLogger())
			require.NoError(t, err)

			positions, err := c.GetAllPositions(context.Background())
			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.ErrCodeTransientFetch))
				return
			}
			require.NoError(t, err)
			assert.Len(t, positions, 1)
		})
	}
}

func TestGetAllPositions_Unreachable(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := newTestClient(t, url).GetAllPositions(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTransientFetch))
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{URL: "::not a url"}, nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))

	_, err = NewClient(Config{}, nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))

	c, err := NewClient(Config{TramLines: []string{"1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, c.config.URL)
	assert.Equal(t, 10*time.Second, c.config.Timeout)
}

func TestEncodeLines(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "busList%5Bbus%5D%5B%5D=d&busList%5Btram%5D%5B%5D=0l",
		encodeLines([]string{"D"}, []string{"0L"}))
}
