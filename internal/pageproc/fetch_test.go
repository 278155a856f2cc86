package pageproc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticFetcherFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()

	f := newStaticFetcher()
	body, err := f.fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, body, "hi")
}

func TestStaticFetcherRejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := newStaticFetcher()
	_, err := f.fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestStaticFetcherRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newStaticFetcher()
	_, err := f.fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestStaticFetcherHonorsCancelledContext(t *testing.T) {
	f := newStaticFetcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.fetch(ctx, "http://example.invalid")
	require.Error(t, err)
}

// TestStaticFetcherAbortsMidFlight proves cancellation tears down a request
// that is already in flight, not just one that hasn't been dispatched yet:
// the handler blocks until the test cancels ctx, so fetch can only return
// promptly if the transport actually aborts the live connection.
func TestStaticFetcherAbortsMidFlight(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-unblock
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()
	defer close(unblock)

	f := newStaticFetcher()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := f.fetch(ctx, srv.URL)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received request")
	}
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not return promptly after mid-flight cancellation")
	}
}
