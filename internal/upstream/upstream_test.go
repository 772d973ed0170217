package upstream_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/simplixity/smiirl-feed/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Success(t *testing.T) {
	var captured http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		w.Write([]byte(`{"followers_count":12}`))
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer token")

	reply := upstream.Get(context.Background(), upstream.NewClient(time.Second), srv.URL, header)

	assert.Equal(t, http.StatusOK, reply.Status)
	assert.True(t, reply.OK())
	assert.Equal(t, "Bearer token", captured.Get("Authorization"))

	var body struct {
		FollowersCount int `json:"followers_count"`
	}
	require.NoError(t, reply.Decode(&body))
	assert.Equal(t, 12, body.FollowersCount)
}

func TestGet_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","code":190}}`))
	}))
	defer srv.Close()

	reply := upstream.Get(context.Background(), upstream.NewClient(time.Second), srv.URL, nil)

	assert.Equal(t, http.StatusBadRequest, reply.Status)
	assert.False(t, reply.OK())
	assert.Equal(t, "Invalid OAuth access token.", reply.ErrorMessage())
	assert.JSONEq(t, `{"error":{"message":"Invalid OAuth access token.","code":190}}`, string(reply.Debug()))
}

func TestGet_EmptyBodyIsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reply := upstream.Get(context.Background(), upstream.NewClient(time.Second), srv.URL, nil)

	assert.Equal(t, http.StatusOK, reply.Status)
	assert.False(t, reply.OK())
	assert.Equal(t, json.RawMessage("[]"), reply.Debug())
}

func TestGet_TimeoutReportsZeroStatus(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	reply := upstream.Get(context.Background(), upstream.NewClient(50*time.Millisecond), srv.URL, nil)

	assert.Equal(t, 0, reply.Status)
	assert.False(t, reply.OK())
	assert.Equal(t, "", reply.ErrorMessage())
}

func TestGet_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	reply := upstream.Get(context.Background(), upstream.NewClient(time.Second), url, nil)

	assert.Equal(t, 0, reply.Status)
	assert.False(t, reply.OK())
}

func TestReply_DebugRejectsNonJSON(t *testing.T) {
	reply := upstream.Reply{Status: http.StatusBadGateway, Body: []byte("<html>bad gateway</html>")}

	assert.Equal(t, json.RawMessage("[]"), reply.Debug())
	assert.Equal(t, "", reply.ErrorMessage())
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	assert.Equal(t, upstream.DefaultTimeout, upstream.NewClient(0).Timeout)
	assert.Equal(t, 5*time.Second, upstream.NewClient(5*time.Second).Timeout)
}
