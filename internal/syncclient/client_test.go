package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/types"
)

func TestUploadSendsBearerAndDecodes(t *testing.T) {
	var gotAuth string
	var gotReq types.UploadRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request failed: %v", err)
		}
		_ = json.NewEncoder(w).Encode(types.UploadResponse{Uploaded: 2, Skipped: 1, Total: 3})
	}))
	defer server.Close()

	client := New(server.URL, "token-123")
	resp, err := client.Upload(context.Background(), types.UploadRequest{AccountKey: "2:1001"})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if gotAuth != "Bearer token-123" {
		t.Fatalf("unexpected auth header: got=%q", gotAuth)
	}
	if gotReq.AccountKey != "2:1001" {
		t.Fatalf("unexpected request body: %+v", gotReq)
	}
	if resp.Uploaded != 2 || resp.Skipped != 1 || resp.Total != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDownloadSinceQuery(t *testing.T) {
	var gotSince string
	var gotKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("account_key")
		gotSince = r.URL.Query().Get("since")
		_ = json.NewEncoder(w).Encode(types.DownloadResponse{ServerTime: time.Now()})
	}))
	defer server.Close()

	client := New(server.URL, "token")
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if _, err := client.Download(context.Background(), "2:1001", &since); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if gotKey != "2:1001" {
		t.Fatalf("unexpected account key: got=%q", gotKey)
	}
	if gotSince == "" {
		t.Fatalf("since should be sent")
	}
	parsed, err := time.Parse(time.RFC3339Nano, gotSince)
	if err != nil || !parsed.Equal(since) {
		t.Fatalf("since round trip broken: got=%q err=%v", gotSince, err)
	}

	// フルダウンロードはsinceを送らない
	if _, err := client.Download(context.Background(), "2:1001", nil); err != nil {
		t.Fatalf("full Download failed: %v", err)
	}
	if gotSince != "" {
		t.Fatalf("full download must omit since: got=%q", gotSince)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusUnauthorized, types.IsAuthError, "auth"},
		{http.StatusInternalServerError, types.IsTransient, "transient"},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		client := New(server.URL, "token")
		_, err := client.Status(context.Background())
		server.Close()

		if err == nil {
			t.Fatalf("%s: expected an error for status %d", tc.name, tc.status)
		}
		if !tc.check(err) {
			t.Fatalf("%s: wrong error class for status %d: %v", tc.name, tc.status, err)
		}
	}

	// 4xx（auth以外）はリトライしない検証エラー扱い
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusBadRequest)
	}))
	defer server.Close()
	client := New(server.URL, "token")
	_, err := client.Status(context.Background())
	if err == nil {
		t.Fatalf("expected an error for 400")
	}
	if types.IsAuthError(err) || types.IsTransient(err) {
		t.Fatalf("400 must not be retryable: %v", err)
	}
	if !types.IsValidation(err) {
		t.Fatalf("400 should be classified as a validation error: %v", err)
	}
}

func TestConnectionRefusedIsTransient(t *testing.T) {
	client := New("http://127.0.0.1:1", "token")
	_, err := client.Status(context.Background())
	if err == nil {
		t.Fatalf("expected a connection error")
	}
	if !types.IsTransient(err) {
		t.Fatalf("network failure should be transient: %v", err)
	}
}
