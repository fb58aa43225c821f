package storageservice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/pkg/models"
)

const aipUUID = "5c1e2f0a-7b3d-4e8f-9a6c-1d2e3f4a5b6c"

func fastPolicy(attempts int) *RetryPolicy {
	p := NewRetryPolicy()
	p.MaxAttempts = attempts
	p.Interval = time.Millisecond
	return p
}

// flakyServer fails the first `failures` requests with status, then serves
// body.
func flakyServer(t *testing.T, failures int32, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "test", r.URL.Query().Get("username"))
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		if n <= failures {
			http.Error(w, "not yet", status)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(srv *httptest.Server, attempts int) *Client {
	return NewClient(srv.URL, "test", "secret",
		WithHTTPClient(srv.Client()),
		WithRetryPolicy(fastPolicy(attempts)),
		WithRateLimit(1000),
		WithLogger(arbor.NewLogger()),
	)
}

func TestNewRetryPolicy(t *testing.T) {
	p := NewRetryPolicy()
	assert.Equal(t, 20, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Interval)
	assert.Equal(t, []int{404, 500}, p.RetryableStatusCodes)
}

func TestFileURL(t *testing.T) {
	c := NewClient("http://ss:8000", "test", "secret")
	assert.Equal(t, "http://ss:8000/api/v2/file/"+aipUUID+"/download/", c.FileURL(aipUUID, "download"))
	assert.Equal(t, "http://ss:8000/api/v2/file/"+aipUUID+"/pointer_file/", c.FileURL(aipUUID, "pointer_file"))
}

func TestDownloadAIP(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		status    int
		attempts  int
		wantErr   bool
		wantCalls int32
	}{
		{"first attempt", 0, 0, 20, false, 1},
		{"404 while storing", 3, http.StatusNotFound, 20, false, 4},
		{"500 while indexing", 2, http.StatusInternalServerError, 20, false, 3},
		{"attempts exhausted", 100, http.StatusNotFound, 5, true, 5},
		{"forbidden not retried", 100, http.StatusForbidden, 20, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := flakyServer(t, tt.failures, tt.status, "7z-bytes")
			dest := filepath.Join(t.TempDir(), "demo-"+aipUUID+".7z")

			err := newTestClient(srv, tt.attempts).DownloadAIP(context.Background(), aipUUID, dest)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(calls))

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, models.ErrDownloadFailed))
				var httpErr *HTTPError
				require.True(t, errors.As(err, &httpErr))
				assert.Equal(t, tt.status, httpErr.StatusCode)
				assert.NoFileExists(t, dest)
				return
			}
			require.NoError(t, err)
			data, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, "7z-bytes", string(data))
		})
	}
}

func TestDownloadPointerFile(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte("<mets:mets/>"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "pointer."+aipUUID+".xml")
	require.NoError(t, newTestClient(srv, 1).DownloadPointerFile(context.Background(), aipUUID, dest))
	assert.Equal(t, "/api/v2/file/"+aipUUID+"/pointer_file/", path)
	assert.FileExists(t, dest)
}

func TestDownload_ContextCancel(t *testing.T) {
	srv, _ := flakyServer(t, 100, http.StatusNotFound, "")
	c := newTestClient(srv, 20)
	c.retry.Interval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.DownloadAIP(ctx, aipUUID, filepath.Join(t.TempDir(), "aip.7z"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("sessionid")
		if err != nil || cookie.Value != "abc" {
			http.Error(w, "login required", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("<mets:mets/>"))
	}))
	defer srv.Close()
	c := newTestClient(srv, 1)

	body, err := c.Fetch(context.Background(), srv.URL+"/METS.xml", []*http.Cookie{{Name: "sessionid", Value: "abc"}})
	require.NoError(t, err)
	assert.Equal(t, "<mets:mets/>", string(body))

	_, err = c.Fetch(context.Background(), srv.URL+"/METS.xml", nil)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "http://ss/api/?api_key=%2A%2A%2A&username=test", redact("http://ss/api/?username=test&api_key=secret"))
	assert.Equal(t, "http://ss/api/", redact("http://ss/api/"))
}

func TestDownloadAIP_TransportErrorHidesAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	closedURL := srv.URL
	srv.Close()

	c := NewClient(closedURL, "test", "SECRETKEY123",
		WithRetryPolicy(fastPolicy(2)),
		WithRateLimit(1000),
		WithLogger(arbor.NewLogger()),
	)
	err := c.DownloadAIP(context.Background(), aipUUID, filepath.Join(t.TempDir(), "aip.7z"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDownloadFailed)
	assert.NotContains(t, err.Error(), "SECRETKEY123")
	assert.Contains(t, err.Error(), "api_key=%2A%2A%2A")
}
