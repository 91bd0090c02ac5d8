package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubohome/cubod/pkg/client"
	"github.com/cubohome/cubod/pkg/session"
)

// fakeCloud - httptest stand-in for the vendor API and mobile API
type fakeCloud struct {
	mu            sync.Mutex
	validToken    string
	validRefresh  string
	nextToken     string
	refreshCalls  int32
	camerasCalls  int32
	refreshBroken bool
}

func (f *fakeCloud) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.refreshCalls, 1)

		f.mu.Lock()
		defer f.mu.Unlock()

		auth := r.Header.Get("x-refresh-authorization")
		if f.refreshBroken || auth != "Bearer "+f.validRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		f.validToken = f.nextToken
		fmt.Fprintf(w, `{"data":{"access_token":%q}}`, f.nextToken)
	})

	mux.HandleFunc("/user/cameras", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.camerasCalls, 1)

		f.mu.Lock()
		defer f.mu.Unlock()

		if r.Header.Get("x-cspp-authorization") != "Bearer "+f.validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		fmt.Fprint(w, `{"data":[{"device_id":"CAM1"}],"profiles":[],"report_settings":[]}`)
	})

	return mux
}

func newTestClient(t *testing.T, cloud *fakeCloud, pair session.Pair) (*client.CuboClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(cloud.handler())
	t.Cleanup(server.Close)

	store := session.NewStore(t.TempDir())
	require.NoError(t, store.SavePair(pair))

	c := client.NewCuboClient(store)
	c.APIBase = server.URL
	c.MobileAPIBase = server.URL
	return c, server
}

func TestFetchWithValidToken(t *testing.T) {
	cloud := &fakeCloud{validToken: "A1", validRefresh: "R1"}
	c, _ := newTestClient(t, cloud, session.Pair{AccessToken: "A1", RefreshToken: "R1"})

	resp, err := c.FetchCameras(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "CAM1", resp.Data[0].DeviceID)
	assert.EqualValues(t, 0, cloud.refreshCalls)
}

// Expired token: one refresh, retried call succeeds and the fresh pair is
// persisted so the token file holds "A2", not "A1".
func TestFetchRefreshesOnceOn401(t *testing.T) {
	cloud := &fakeCloud{validToken: "A2", validRefresh: "R1", nextToken: "A2"}
	c, _ := newTestClient(t, cloud, session.Pair{AccessToken: "A1", RefreshToken: "R1"})

	resp, err := c.FetchCameras(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)

	assert.EqualValues(t, 1, cloud.refreshCalls)
	assert.EqualValues(t, 2, cloud.camerasCalls)

	reopened := session.NewStore(c.SessionStore.Dir)
	require.NoError(t, reopened.Load())
	assert.Equal(t, "A2", reopened.Pair().AccessToken)
}

// A second 401 after a successful refresh surfaces as AuthError and never
// triggers a second refresh within the same call.
func TestSecond401SurfacesAuthError(t *testing.T) {
	// Refresh succeeds, but the token it mints is still not accepted
	cloud := &fakeCloud{validToken: "other", validRefresh: "R1", nextToken: "A2"}
	cloud.nextToken = "A2"

	c, _ := newTestClient(t, cloud, session.Pair{AccessToken: "A1", RefreshToken: "R1"})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth/token" {
			atomic.AddInt32(&cloud.refreshCalls, 1)
			fmt.Fprint(w, `{"data":{"access_token":"A2"}}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c.APIBase = server.URL
	c.MobileAPIBase = server.URL

	_, err := c.FetchCameras(context.Background())

	var authErr *client.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.EqualValues(t, 1, cloud.refreshCalls)
}

func TestRejectedRefreshTokenSurfacesAuthError(t *testing.T) {
	cloud := &fakeCloud{validToken: "A2", validRefresh: "R1", refreshBroken: true}
	c, _ := newTestClient(t, cloud, session.Pair{AccessToken: "A1", RefreshToken: "R1"})

	_, err := c.FetchCameras(context.Background())

	var authErr *client.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	store := session.NewStore(t.TempDir())
	require.NoError(t, store.SavePair(session.Pair{AccessToken: "A1", RefreshToken: "R1"}))

	c := client.NewCuboClient(store)
	c.APIBase = server.URL

	_, err := c.FetchCameras(context.Background())

	var transient *client.TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, http.StatusBadGateway, transient.StatusCode)
}

func TestMalformedBodyIsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [`)
	}))
	defer server.Close()

	store := session.NewStore(t.TempDir())
	require.NoError(t, store.SavePair(session.Pair{AccessToken: "A1", RefreshToken: "R1"}))

	c := client.NewCuboClient(store)
	c.APIBase = server.URL

	_, err := c.FetchCameras(context.Background())

	var protoErr *client.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestConnectionFailureIsTransient(t *testing.T) {
	store := session.NewStore(t.TempDir())
	require.NoError(t, store.SavePair(session.Pair{AccessToken: "A1", RefreshToken: "R1"}))

	c := client.NewCuboClient(store)
	c.APIBase = "http://127.0.0.1:1" // nothing listens here

	_, err := c.FetchCameras(context.Background())

	var transient *client.TransientError
	require.ErrorAs(t, err, &transient)
}

// Concurrent pollers hitting an expired token share one in-flight refresh.
func TestConcurrentRefreshIsSingleFlight(t *testing.T) {
	cloud := &fakeCloud{validToken: "A2", validRefresh: "R1", nextToken: "A2"}
	c, _ := newTestClient(t, cloud, session.Pair{AccessToken: "A1", RefreshToken: "R1"})

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.RefreshTokens(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.EqualValues(t, 1, cloud.refreshCalls)
	assert.Equal(t, "A2", c.SessionStore.Pair().AccessToken)
}

func TestRefreshWithoutTokenNeedsRelogin(t *testing.T) {
	store := session.NewStore(t.TempDir())
	c := client.NewCuboClient(store)

	_, err := c.RefreshTokens(context.Background())

	var authErr *client.AuthError
	require.ErrorAs(t, err, &authErr)
}
