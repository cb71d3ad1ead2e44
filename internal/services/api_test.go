package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/qbx/internal/shared"
	tu "github.com/desertthunder/qbx/internal/testing"
	"golang.org/x/oauth2"
)

func TestAPIService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			srv := NewAPIService("http://example.com/", customClient)

			if srv.baseURL != "http://example.com" {
				t.Errorf("expected trimmed baseURL 'http://example.com', got %s", srv.baseURL)
			}
			if srv.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("With Empty BaseURL", func(t *testing.T) {
			srv := NewAPIService("", nil)

			if srv.baseURL != DefaultBaseURL {
				t.Errorf("expected default baseURL %s, got %s", DefaultBaseURL, srv.baseURL)
			}
			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})

		t.Run("Options", func(t *testing.T) {
			srv := NewAPIService("", nil, WithAppID("123"), WithUserAuthToken("tok"), WithRateLimit(0.5))

			if srv.AppID() != "123" {
				t.Errorf("expected app id 123, got %s", srv.AppID())
			}
			if !srv.Authenticated() {
				t.Error("expected service to be authenticated")
			}
			if srv.limiter == nil || srv.limiter.Burst() != 1 {
				t.Error("expected limiter with burst 1")
			}

			anon := NewAPIService("", nil, WithUserAuthToken(""), WithRateLimit(0))
			if anon.Authenticated() {
				t.Error("expected empty token to leave service unauthenticated")
			}
			if anon.limiter != nil {
				t.Error("expected zero rate to disable limiter")
			}
		})
	})

	t.Run("CreateRequest", func(t *testing.T) {
		t.Run("Sends Path Params And Credentials", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET method, got %s", r.Method)
				}
				if r.URL.Path != "/favorite/getUserFavorites" {
					t.Errorf("expected path '/favorite/getUserFavorites', got %s", r.URL.Path)
				}
				if r.URL.RawQuery != "type=albums&limit=50&offset=100" {
					t.Errorf("expected ordered query, got %s", r.URL.RawQuery)
				}
				if r.Header.Get("X-App-Id") != "app" {
					t.Errorf("expected X-App-Id 'app', got %s", r.Header.Get("X-App-Id"))
				}
				if r.Header.Get("X-User-Auth-Token") != "secret" {
					t.Errorf("expected X-User-Auth-Token 'secret', got %s", r.Header.Get("X-User-Auth-Token"))
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"albums":{"offset":100,"limit":50,"total":0,"items":[]}}`))
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, WithAppID("app"), WithUserAuthToken("secret"))
			resp, err := srv.CreateRequest(context.Background(), "favorite/getUserFavorites", []Param{
				P("type", "albums"), P("limit", "50"), P("offset", "100"),
			})

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected status 200, got %d", resp.StatusCode)
			}
			if !resp.IsJSON {
				t.Error("expected response to be JSON")
			}
			if resp.Err() != nil {
				t.Errorf("expected nil Err for 200, got %v", resp.Err())
			}
		})

		t.Run("Omits Token When Unauthenticated", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, ok := r.Header["X-User-Auth-Token"]; ok {
					t.Error("expected no auth token header")
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, WithAppID("app"))
			if _, err := srv.CreateRequest(context.Background(), "/artist/search", []Param{P("query", "a b")}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("Token Source Failure", func(t *testing.T) {
			srv := NewAPIService("http://example.com", nil, WithTokenSource(failingTokenSource{}))
			_, err := srv.CreateRequest(context.Background(), "album/get", nil)

			if !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})

		t.Run("Failed Request Creation", func(t *testing.T) {
			srv := NewAPIService("http://example.com", nil)
			_, err := srv.CreateRequest(context.Background(), "test\x00invalid", nil)

			if err == nil {
				t.Fatal("expected error for invalid URL")
			}
			if !strings.Contains(err.Error(), "failed to create request") {
				t.Errorf("expected 'failed to create request' error, got %v", err)
			}
		})

		t.Run("Failed HTTP Request", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed")),
			}

			srv := NewAPIService("http://example.com", client)
			_, err := srv.CreateRequest(context.Background(), "test", nil)

			if err == nil {
				t.Fatal("expected error for failed request")
			}
			if !strings.Contains(err.Error(), "request failed") {
				t.Errorf("expected 'request failed' error, got %v", err)
			}
		})

		t.Run("Failed Response Body Read", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(&http.Response{
					StatusCode: http.StatusOK,
					Body:       &tu.FCloser{},
					Header:     http.Header{},
				}, nil),
			}

			srv := NewAPIService("http://example.com", client)
			_, err := srv.CreateRequest(context.Background(), "test", nil)

			if err == nil {
				t.Fatal("expected error for failed body read")
			}
			if !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected 'failed to read response' error, got %v", err)
			}
		})

		t.Run("Rate Limiter Honors Context", func(t *testing.T) {
			srv := NewAPIService("http://example.com", nil, WithRateLimit(0.001))
			srv.limiter.Allow()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			_, err := srv.CreateRequest(ctx, "test", nil)
			if err == nil || !strings.Contains(err.Error(), "rate limiter") {
				t.Errorf("expected rate limiter error, got %v", err)
			}
		})
	})

	t.Run("Fetch", func(t *testing.T) {
		t.Run("Returns Image Bytes And Mimetype", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("X-App-Id") != "" {
					t.Error("expected fetch without catalog credentials")
				}
				w.Header().Set("Content-Type", "image/JPEG; charset=binary")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte{0xff, 0xd8, 0xff})
			}))
			defer server.Close()

			srv := NewAPIService("http://unused", nil, WithAppID("app"))
			resp, err := srv.Fetch(context.Background(), server.URL+"/cover.jpg")

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.MimeType() != "image/jpeg" {
				t.Errorf("expected mimetype image/jpeg, got %s", resp.MimeType())
			}
			if len(resp.Body) != 3 {
				t.Errorf("expected 3 bytes, got %d", len(resp.Body))
			}
		})

		t.Run("With Canceled Context", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			srv := NewAPIService(server.URL, nil)
			if _, err := srv.Fetch(ctx, server.URL); err == nil {
				t.Error("expected error for canceled context")
			}
		})

		t.Run("Transport Failure", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(nil, errors.New("connection reset")),
			}

			srv := NewAPIService("http://example.com", client)
			_, err := srv.Fetch(context.Background(), "https://static.example.com/covers/a1.jpg")

			if err == nil {
				t.Fatal("expected error for failed fetch")
			}
			if !strings.Contains(err.Error(), "request failed") || !strings.Contains(err.Error(), "connection reset") {
				t.Errorf("expected wrapped transport error, got %v", err)
			}
		})
	})

	t.Run("APIResponse", func(t *testing.T) {
		tests := []struct {
			name    string
			resp    APIResponse
			wantErr string
		}{
			{
				name: "OK",
				resp: APIResponse{StatusCode: http.StatusOK},
			},
			{
				name:    "JSON Message",
				resp:    APIResponse{StatusCode: http.StatusUnauthorized, IsJSON: true, Body: []byte(`{"status":"error","code":401,"message":"User authentication is required."}`)},
				wantErr: "User authentication is required. (401)",
			},
			{
				name:    "JSON Without Message",
				resp:    APIResponse{StatusCode: http.StatusBadRequest, IsJSON: true, Body: []byte(`{"status":"error"}`)},
				wantErr: "Received HTTP code 400",
			},
			{
				name:    "Plain Body",
				resp:    APIResponse{StatusCode: http.StatusBadGateway, Body: []byte("bad gateway")},
				wantErr: "Received HTTP code 502",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.resp.Err()
				if tt.wantErr == "" {
					if err != nil {
						t.Errorf("expected nil error, got %v", err)
					}
					return
				}
				if !errors.Is(err, shared.ErrAPIRequest) {
					t.Errorf("expected ErrAPIRequest, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
				}
			})
		}

		t.Run("MimeType Without Header", func(t *testing.T) {
			resp := APIResponse{Headers: http.Header{}}
			if resp.MimeType() != "" {
				t.Errorf("expected empty mimetype, got %s", resp.MimeType())
			}
		})
	})
}

type failingTokenSource struct{}

func (failingTokenSource) Token() (*oauth2.Token, error) {
	return nil, errors.New("token expired")
}
