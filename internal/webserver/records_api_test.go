package webserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/authtoken"
	"github.com/nantokaworks/gacha-vault/internal/leaderboard"
	"github.com/nantokaworks/gacha-vault/internal/remotedb"
	"github.com/nantokaworks/gacha-vault/internal/types"
)

const testSecret = "test-secret"

func setupServerTest(t *testing.T) (*Server, string) {
	t.Helper()

	if remotedb.DBClient != nil {
		_ = remotedb.DBClient.Close()
		remotedb.DBClient = nil
	}

	dbPath := filepath.Join(t.TempDir(), "vault.db")
	db, err := remotedb.SetupDB(dbPath)
	if err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		remotedb.DBClient = nil
	})

	server := New(authtoken.NewHMACVerifier(testSecret), leaderboard.NewAggregator(time.Hour))
	token, err := authtoken.Issue(testSecret, "owner-a")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return server, token
}

func makeWireRecord(accountKey string, category types.Category, seqID int64, happenedAt time.Time) types.FactRecord {
	return types.FactRecord{
		UID:        types.RecordUID(accountKey, category, seqID),
		AccountKey: accountKey,
		Category:   category,
		PoolID:     "301",
		ItemID:     "item-1",
		ItemName:   "Test Item",
		Rarity:     5,
		SeqID:      seqID,
		HappenedAt: happenedAt,
		FetchedAt:  happenedAt.Add(time.Minute),
	}
}

func doJSON(t *testing.T, server *Server, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request failed: %v", err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	return rec
}

func TestUploadIdempotent(t *testing.T) {
	server, token := setupServerTest(t)

	now := time.Now().Truncate(time.Millisecond)
	req := types.UploadRequest{
		AccountKey: "2:1001",
		Records: []types.FactRecord{
			makeWireRecord("2:1001", types.CategoryCharacter, 1, now),
			makeWireRecord("2:1001", types.CategoryCharacter, 2, now),
			makeWireRecord("2:1001", types.CategoryWeapon, 1, now),
		},
	}

	rec := doJSON(t, server, http.MethodPost, "/api/v1/records/upload", token, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status mismatch: got=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp types.UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.Uploaded != 3 || resp.Skipped != 0 || resp.Total != 3 {
		t.Fatalf("unexpected first upload result: %+v", resp)
	}

	// 同一バッチの再送: uploaded=0, skipped=N
	rec = doJSON(t, server, http.MethodPost, "/api/v1/records/upload", token, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat upload status mismatch: got=%d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal repeat response failed: %v", err)
	}
	if resp.Uploaded != 0 || resp.Skipped != 3 || resp.Total != 3 {
		t.Fatalf("repeat upload should dedup everything: %+v", resp)
	}
}

func TestUploadValidation(t *testing.T) {
	server, token := setupServerTest(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/records/upload", token, types.UploadRequest{
		AccountKey: "malformed",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed key should be rejected: got=%d", rec.Code)
	}

	// レコードのキー不一致も400
	now := time.Now()
	rec = doJSON(t, server, http.MethodPost, "/api/v1/records/upload", token, types.UploadRequest{
		AccountKey: "2:1001",
		Records:    []types.FactRecord{makeWireRecord("2:9999", types.CategoryCharacter, 1, now)},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatched record key should be rejected: got=%d", rec.Code)
	}

	// 識別フィールドと矛盾するUIDも400
	forged := makeWireRecord("2:1001", types.CategoryCharacter, 1, now)
	forged.UID = "11111111-2222-3333-4444-555555555555"
	rec = doJSON(t, server, http.MethodPost, "/api/v1/records/upload", token, types.UploadRequest{
		AccountKey: "2:1001",
		Records:    []types.FactRecord{forged},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatched record UID should be rejected: got=%d", rec.Code)
	}
}

func TestUploadRequiresAuth(t *testing.T) {
	server, _ := setupServerTest(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/records/upload", "", types.UploadRequest{AccountKey: "2:1001"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token should be rejected: got=%d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/records/upload", "bogus", types.UploadRequest{AccountKey: "2:1001"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token should be rejected: got=%d", rec.Code)
	}
}

func TestDownloadRoundTrip(t *testing.T) {
	server, token := setupServerTest(t)

	now := time.Now().Truncate(time.Millisecond)
	uploaded := []types.FactRecord{
		makeWireRecord("2:1001", types.CategoryCharacter, 1, now.Add(-2*time.Hour)),
		makeWireRecord("2:1001", types.CategoryCharacter, 2, now.Add(-time.Hour)),
		makeWireRecord("2:1001", types.CategoryWeapon, 1, now),
	}
	rec := doJSON(t, server, http.MethodPost, "/api/v1/records/upload", token, types.UploadRequest{
		AccountKey: "2:1001",
		Records:    uploaded,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("upload failed: got=%d", rec.Code)
	}

	// sinceなしの全量ダウンロードはアップロード集合と一致する
	rec = doJSON(t, server, http.MethodGet, "/api/v1/records/download?account_key=2:1001", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("download failed: got=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp types.DownloadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal download failed: %v", err)
	}
	if resp.Total != 3 || len(resp.Records) != 3 {
		t.Fatalf("unexpected download size: total=%d len=%d", resp.Total, len(resp.Records))
	}
	if resp.ServerTime.IsZero() {
		t.Fatalf("server time missing")
	}

	gotUIDs := map[string]bool{}
	for _, r := range resp.Records {
		gotUIDs[r.UID] = true
	}
	for _, r := range uploaded {
		if !gotUIDs[r.UID] {
			t.Fatalf("record %s missing from download", r.UID)
		}
	}

	// since指定で境界以降のみ
	since := now.Add(-time.Hour).Format(time.RFC3339Nano)
	rec = doJSON(t, server, http.MethodGet, "/api/v1/records/download?account_key=2:1001&since="+since, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("incremental download failed: got=%d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal incremental download failed: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("since filter broken: got=%d want=2", resp.Total)
	}
}

func TestStatusQuery(t *testing.T) {
	server, token := setupServerTest(t)

	now := time.Now().Truncate(time.Millisecond)
	doJSON(t, server, http.MethodPost, "/api/v1/records/upload", token, types.UploadRequest{
		AccountKey: "2:1001",
		Records: []types.FactRecord{
			makeWireRecord("2:1001", types.CategoryCharacter, 1, now),
			makeWireRecord("2:1001", types.CategoryWeapon, 1, now),
		},
	})

	rec := doJSON(t, server, http.MethodGet, "/api/v1/status", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status failed: got=%d", rec.Code)
	}

	var resp types.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal status failed: %v", err)
	}
	if len(resp.Accounts) != 1 {
		t.Fatalf("unexpected account count: got=%d", len(resp.Accounts))
	}
	if resp.Accounts[0].CountsByCategory[types.CategoryCharacter] != 1 {
		t.Fatalf("unexpected character count: %+v", resp.Accounts[0])
	}
}

func TestDeleteRecords(t *testing.T) {
	server, token := setupServerTest(t)

	now := time.Now()
	doJSON(t, server, http.MethodPost, "/api/v1/records/upload", token, types.UploadRequest{
		AccountKey: "2:1001",
		Records:    []types.FactRecord{makeWireRecord("2:1001", types.CategoryCharacter, 1, now)},
	})

	rec := doJSON(t, server, http.MethodDelete, "/api/v1/records?account_key=2:1001", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete failed: got=%d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/records/download?account_key=2:1001", token, nil)
	var resp types.DownloadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal download failed: %v", err)
	}
	if resp.Total != 0 {
		t.Fatalf("records should be gone: got=%d", resp.Total)
	}
}
