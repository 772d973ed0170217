package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// GraphVersionPath is the version prefix served by MockGraphServer.
const GraphVersionPath = "/v24.0"

// MockEndpoint is a configurable endpoint of a mock server. A nil Payload
// produces an empty body.
type MockEndpoint struct {
	StatusCode int
	Payload    any

	calls atomic.Int32

	mu       sync.Mutex
	lastAuth string
	lastURL  string
}

// Calls returns the number of requests the endpoint received.
func (e *MockEndpoint) Calls() int {
	return int(e.calls.Load())
}

// LastAuthHeader returns the Authorization header of the last request.
func (e *MockEndpoint) LastAuthHeader() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAuth
}

// LastURL returns the request URI of the last request.
func (e *MockEndpoint) LastURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastURL
}

func (e *MockEndpoint) serve(w http.ResponseWriter, r *http.Request) {
	e.calls.Add(1)

	e.mu.Lock()
	e.lastAuth = r.Header.Get("Authorization")
	e.lastURL = r.URL.RequestURI()
	status, payload := e.StatusCode, e.Payload
	e.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}

	if payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeBody(w, payload)
}

// Respond replaces the status and payload returned by the endpoint.
func (e *MockEndpoint) Respond(status int, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StatusCode = status
	e.Payload = payload
}

// MockGraphServer is a mock of the three Graph API endpoints used to resolve a
// follower count. By default it answers the happy path: page P1 with token T1,
// business account B1 and 4242 followers for "acme".
type MockGraphServer struct {
	Server    *httptest.Server
	Accounts  *MockEndpoint
	Page      *MockEndpoint
	Followers *MockEndpoint
	Unmatched atomic.Int32
}

// SetupMockGraphServer starts a mock Graph API server that is closed when the
// test finishes.
func SetupMockGraphServer(t *testing.T) *MockGraphServer {
	t.Helper()

	mock := &MockGraphServer{
		Accounts: &MockEndpoint{
			Payload: map[string]any{
				"data": []map[string]any{
					{"id": "P1", "access_token": "T1", "name": "Acme"},
				},
			},
		},
		Page: &MockEndpoint{
			Payload: map[string]any{
				"id":                         "P1",
				"instagram_business_account": map[string]any{"id": "B1"},
			},
		},
		Followers: &MockEndpoint{
			Payload: map[string]any{
				"id":              "B1",
				"followers_count": 4242,
				"username":        "acme",
			},
		},
	}

	router := http.NewServeMux()

	router.HandleFunc("GET "+GraphVersionPath+"/me/accounts", mock.Accounts.serve)

	router.HandleFunc("GET "+GraphVersionPath+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		fields := r.URL.Query().Get("fields")

		switch {
		case fields == "instagram_business_account":
			mock.Page.serve(w, r)
		case strings.Contains(fields, "followers_count"):
			mock.Followers.serve(w, r)
		default:
			mock.Unmatched.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	mock.Server = httptest.NewServer(router)
	t.Cleanup(mock.Server.Close)

	return mock
}

// URL returns the versioned base URL of the mock API.
func (m *MockGraphServer) URL() string {
	return m.Server.URL + GraphVersionPath
}

// TotalCalls is the number of requests received by all endpoints.
func (m *MockGraphServer) TotalCalls() int {
	return m.Accounts.Calls() + m.Page.Calls() + m.Followers.Calls() + int(m.Unmatched.Load())
}

// MockInstagramServer is a mock of the web profile endpoint.
type MockInstagramServer struct {
	Server  *httptest.Server
	Profile *MockEndpoint

	mu     sync.Mutex
	header http.Header
}

// WebProfilePath is the path served by MockInstagramServer.
const WebProfilePath = "/api/v1/users/web_profile_info/"

// SetupMockInstagramServer starts a mock web profile server reporting 1234
// followers. The server is closed when the test finishes.
func SetupMockInstagramServer(t *testing.T) *MockInstagramServer {
	t.Helper()

	mock := &MockInstagramServer{
		Profile: &MockEndpoint{
			Payload: WebProfilePayload(1234),
		},
	}

	router := http.NewServeMux()
	router.HandleFunc("GET "+WebProfilePath, func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.header = r.Header.Clone()
		mock.mu.Unlock()

		mock.Profile.serve(w, r)
	})

	mock.Server = httptest.NewServer(router)
	t.Cleanup(mock.Server.Close)

	return mock
}

// URL returns the address of the web profile endpoint.
func (m *MockInstagramServer) URL() string {
	return m.Server.URL + WebProfilePath
}

// LastHeader returns the headers of the last request received.
func (m *MockInstagramServer) LastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.header
}

// WebProfilePayload builds a web profile response with the given follower
// count.
func WebProfilePayload(followers int) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"user": map[string]any{
				"edge_followed_by": map[string]any{"count": followers},
			},
		},
		"status": "ok",
	}
}

func writeBody(w http.ResponseWriter, payload any) {
	switch p := payload.(type) {
	case string:
		_, _ = w.Write([]byte(p))
	case []byte:
		_, _ = w.Write(p)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			// In test context, this should never happen with valid test data
			http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(data)
	}
}

// WriteJSON is a helper function that writes a JSON response.
// It sets the Content-Type header and marshals the payload to JSON.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	writeBody(w, payload)
}
