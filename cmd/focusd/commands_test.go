package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/kalambet/focusd/internal/api"
	"github.com/kalambet/focusd/internal/store"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestLoginRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /login": `{"status":"logged_in"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/login", map[string]string{
		"email":    "u@example.com",
		"password": "pw",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "logged_in" {
		t.Errorf("status = %q, want logged_in", result["status"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["email"] != "u@example.com" {
		t.Errorf("body.email = %q", body["email"])
	}
	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", ts.requests[0].Auth)
	}
}

func TestLoginCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"login"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing flags")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestSessionsListing(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /sessions": `[{"ID":"rec-00000001","ResourceKey":"docs.example.com","Kind":"session","Start":"2026-05-04T10:00:00Z","DurationSeconds":42,"Class":"productive"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/sessions?limit=20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sessions []store.RecentSession
	if err := decodeJSON(resp, &sessions); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].ResourceKey != "docs.example.com" || sessions[0].DurationSeconds != 42 {
		t.Errorf("session = %+v", sessions[0])
	}
}

func TestQueueListing(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /queue": `{"depth":2,"records":[{"id":"rec-001","kind":"session","enqueued_at":"2026-05-04T10:00:00Z"},{"id":"rec-002","kind":"heartbeat","enqueued_at":"2026-05-04T10:01:00Z"}]}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/queue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Depth   int              `json:"depth"`
		Records []api.QueueEntry `json:"records"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Depth != 2 || len(body.Records) != 2 {
		t.Fatalf("queue = %+v", body)
	}
	if body.Records[1].Kind != "heartbeat" {
		t.Errorf("second record kind = %q", body.Records[1].Kind)
	}
}

func TestBlockAdd(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /blocklist": `{"status":"blocked"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/blocklist", map[string]string{"domain": "tiktok.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["domain"] != "tiktok.com" {
		t.Errorf("body.domain = %q", body["domain"])
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped agent")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/status")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"lecture", []string{"lecture"}},
		{"lecture, course , tutorial", []string{"lecture", "course", "tutorial"}},
		{" , ,", []string{}},
	}
	for _, tt := range tests {
		got := splitCSV(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitCSV(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDomainOf(t *testing.T) {
	if got := domainOf("youtube:abc123"); got != "" {
		t.Errorf("domainOf(video key) = %q, want empty", got)
	}
	if got := domainOf("reddit.com"); got != "reddit.com" {
		t.Errorf("domainOf(domain key) = %q", got)
	}
}
