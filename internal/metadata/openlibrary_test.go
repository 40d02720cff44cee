package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/campuslib/internal/apperrors"
)

func TestNormalizeISBN(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"978-0-13-468599-1", "9780134685991"},
		{"0-13-468599-6", "0134685996"},
		{"978 0 13 468599 1", "9780134685991"},
		{"0-8044-2957-x", "080442957X"},
		{"123", ""},
		{"12345678901234", ""},
		{"", ""},
		{"  978-0-13-468599-1  ", "9780134685991"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeISBN(tt.input))
		})
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenLibraryClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenLibraryClient(WithBaseURL(srv.URL, "https://covers.test"), WithInterval(0))
}

func TestOpenLibraryClient_LookupISBN(t *testing.T) {
	ctx := context.Background()

	t.Run("edition with author and cover", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/isbn/9780134685991.json":
				_, _ = w.Write([]byte(`{"title":"Effective Java","authors":[{"key":"/authors/OL1A"}],"covers":[8231856]}`))
			case "/authors/OL1A.json":
				_, _ = w.Write([]byte(`{"name":"Joshua Bloch"}`))
			default:
				http.NotFound(w, r)
			}
		})

		info, err := client.LookupISBN(ctx, "978-0-13-468599-1")
		require.NoError(t, err)
		assert.Equal(t, &BookInfo{
			Title:    "Effective Java",
			Author:   "Joshua Bloch",
			ISBN:     "9780134685991",
			CoverURL: "https://covers.test/b/isbn/9780134685991-L.jpg",
		}, info)
	})

	t.Run("author lookup failure keeps the title", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/isbn/0134685996.json" {
				_, _ = w.Write([]byte(`{"title":"Effective Java","authors":[{"key":"/authors/OL1A"}]}`))
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
		})

		info, err := client.LookupISBN(ctx, "0134685996")
		require.NoError(t, err)
		assert.Equal(t, "Effective Java", info.Title)
		assert.Empty(t, info.Author)
		assert.Empty(t, info.CoverURL)
	})

	t.Run("unknown isbn", func(t *testing.T) {
		client := newTestClient(t, http.NotFound)
		_, err := client.LookupISBN(ctx, "9780000000000")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("invalid isbn never hits the network", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected request to %s", r.URL.Path)
		})
		_, err := client.LookupISBN(ctx, "12-34")
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("server error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := client.LookupISBN(ctx, "9780134685991")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})
}

func TestThrottle(t *testing.T) {
	th := &throttle{interval: 50 * time.Millisecond}
	ctx := context.Background()

	require.NoError(t, th.wait(ctx))
	start := time.Now()
	require.NoError(t, th.wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, th.wait(cancelled), context.Canceled)
}
