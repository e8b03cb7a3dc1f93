package localapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/localdb"
	"github.com/nantokaworks/gacha-vault/internal/settings"
	"github.com/nantokaworks/gacha-vault/internal/status"
	"github.com/nantokaworks/gacha-vault/internal/syncmanager"
	"github.com/nantokaworks/gacha-vault/internal/types"
)

type stubRemote struct{}

func (stubRemote) Upload(_ context.Context, req types.UploadRequest) (*types.UploadResponse, error) {
	return &types.UploadResponse{Total: len(req.Records)}, nil
}

func (stubRemote) Download(_ context.Context, _ string, _ *time.Time) (*types.DownloadResponse, error) {
	return &types.DownloadResponse{ServerTime: time.Now()}, nil
}

func (stubRemote) Status(_ context.Context) (*types.StatusResponse, error) {
	return &types.StatusResponse{}, nil
}

type stubProxy struct {
	view    *types.RankedViewResponse
	prefs   types.LeaderboardSettings
	saved   *types.LeaderboardSettings
	callErr error
}

func (p *stubProxy) Leaderboard(_ context.Context, viewType string, limit int) (*types.RankedViewResponse, error) {
	if p.callErr != nil {
		return nil, p.callErr
	}
	return p.view, nil
}

func (p *stubProxy) GetLeaderboardSettings(_ context.Context) (*types.LeaderboardSettings, error) {
	if p.callErr != nil {
		return nil, p.callErr
	}
	return &p.prefs, nil
}

func (p *stubProxy) SetLeaderboardSettings(_ context.Context, s types.LeaderboardSettings) error {
	if p.callErr != nil {
		return p.callErr
	}
	p.saved = &s
	return nil
}

func setupAgentTest(t *testing.T, proxy RemoteProxy) *Server {
	t.Helper()

	if localdb.DBClient != nil {
		_ = localdb.DBClient.Close()
		localdb.DBClient = nil
	}
	dbPath := filepath.Join(t.TempDir(), "local.db")
	db, err := localdb.SetupDB(dbPath)
	if err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		localdb.DBClient = nil
	})

	status.Reset()
	t.Cleanup(status.Reset)

	manager := syncmanager.New(stubRemote{}, nil)
	return New(manager, proxy, settings.NewSettingsManager(db))
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func seedAccount(t *testing.T, key string, records int) {
	t.Helper()

	if err := localdb.UpsertAccount(types.Account{Key: key}); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	batch := make([]types.FactRecord, 0, records)
	for i := 0; i < records; i++ {
		seq := int64(i + 1)
		batch = append(batch, types.FactRecord{
			UID:        types.RecordUID(key, types.CategoryCharacter, seq),
			AccountKey: key,
			Category:   types.CategoryCharacter,
			PoolID:     "301",
			ItemID:     "item",
			ItemName:   "Item",
			Rarity:     4,
			SeqID:      seq,
			HappenedAt: time.Now().Add(-time.Hour),
			FetchedAt:  time.Now(),
		})
	}
	if records > 0 {
		if _, err := localdb.InsertRecordsIfAbsent(batch, localdb.OriginLocal); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	s := setupAgentTest(t, nil)
	status.SetError("remote unreachable")

	rec := doRequest(t, s, http.MethodGet, "/api/sync/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code got=%d want=200", rec.Code)
	}

	var st status.SyncStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if st.LastError != "remote unreachable" {
		t.Errorf("last error got=%q", st.LastError)
	}
}

func TestSyncNowEndpoint(t *testing.T) {
	s := setupAgentTest(t, nil)
	seedAccount(t, "2:1001", 0)

	rec := doRequest(t, s, http.MethodPost, "/api/sync/now", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code got=%d want=200 body=%s", rec.Code, rec.Body.String())
	}

	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp["changed"] {
		t.Error("empty cycle should report changed=false")
	}
}

func TestSyncNowWhenDisabled(t *testing.T) {
	s := setupAgentTest(t, nil)
	s.manager = syncmanager.New(stubRemote{}, func() bool { return false })

	rec := doRequest(t, s, http.MethodPost, "/api/sync/now", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status code got=%d want=503", rec.Code)
	}
}

func TestAccountListAndDelete(t *testing.T) {
	s := setupAgentTest(t, nil)
	seedAccount(t, "2:1001", 3)
	seedAccount(t, "2:1002", 1)

	rec := doRequest(t, s, http.MethodGet, "/api/accounts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code got=%d want=200", rec.Code)
	}
	var summaries []accountSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("accounts got=%d want=2", len(summaries))
	}
	if summaries[0].Key != "2:1001" || summaries[0].RecordCount != 3 {
		t.Errorf("unexpected first summary: %+v", summaries[0])
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/accounts?account_key=2:1001", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status got=%d want=204", rec.Code)
	}
	count, err := localdb.CountRecords("2:1001")
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 0 {
		t.Errorf("records should be gone, got=%d", count)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/accounts?account_key=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed key status got=%d want=400", rec.Code)
	}
}

func TestRedownloadArmsMarker(t *testing.T) {
	s := setupAgentTest(t, nil)
	seedAccount(t, "2:1001", 1)

	rec := doRequest(t, s, http.MethodPost, "/api/accounts/redownload?account_key=2:1001", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status code got=%d want=202", rec.Code)
	}

	forced, err := localdb.ConsumeForceFull("2:1001")
	if err != nil {
		t.Fatalf("ConsumeForceFull failed: %v", err)
	}
	if !forced {
		t.Error("marker should be armed")
	}
}

func TestRecordsEndpointFiltersCategory(t *testing.T) {
	s := setupAgentTest(t, nil)
	seedAccount(t, "2:1001", 2)
	weapon := types.FactRecord{
		UID:        types.RecordUID("2:1001", types.CategoryWeapon, 99),
		AccountKey: "2:1001",
		Category:   types.CategoryWeapon,
		PoolID:     "302",
		ItemID:     "w",
		ItemName:   "W",
		Rarity:     5,
		SeqID:      99,
		HappenedAt: time.Now().Add(-time.Hour),
		FetchedAt:  time.Now(),
	}
	if _, err := localdb.InsertRecordsIfAbsent([]types.FactRecord{weapon}, localdb.OriginLocal); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/records?account_key=2:1001&category=weapon", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code got=%d want=200", rec.Code)
	}
	var records []types.FactRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(records) != 1 || records[0].Category != types.CategoryWeapon {
		t.Errorf("unexpected records: %+v", records)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/records?account_key=2:1001&category=pet", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid category status got=%d want=400", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := setupAgentTest(t, nil)

	rec := doRequest(t, s, http.MethodPut, "/api/settings", map[string]string{
		"SYNC_INTERVAL_MINUTES": "15",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put status got=%d want=204 body=%s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/api/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status got=%d want=200", rec.Code)
	}
	var all map[string]settings.Setting
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if all["SYNC_INTERVAL_MINUTES"].Value != "15" {
		t.Errorf("interval got=%q want=15", all["SYNC_INTERVAL_MINUTES"].Value)
	}

	rec = doRequest(t, s, http.MethodPut, "/api/settings", map[string]string{"NOT_A_SETTING": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown key status got=%d want=400", rec.Code)
	}
}

func TestLeaderboardProxy(t *testing.T) {
	now := time.Now()
	proxy := &stubProxy{
		view: &types.RankedViewResponse{
			Type:              "total_pulls",
			Entries:           []types.RankedEntry{{Rank: 1, MaskedKey: "***001", Value: 420}},
			UpdatedAt:         &now,
			TotalParticipants: 1,
		},
	}
	s := setupAgentTest(t, proxy)

	rec := doRequest(t, s, http.MethodGet, "/api/leaderboard?type=total_pulls", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code got=%d want=200", rec.Code)
	}
	var view types.RankedViewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(view.Entries) != 1 || view.Entries[0].MaskedKey != "***001" {
		t.Errorf("unexpected view: %+v", view)
	}

	rec = doRequest(t, s, http.MethodPut, "/api/leaderboard/settings", types.LeaderboardSettings{Participate: true})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("settings put status got=%d want=204", rec.Code)
	}
	if proxy.saved == nil || !proxy.saved.Participate {
		t.Errorf("settings not forwarded: %+v", proxy.saved)
	}
}

func TestLeaderboardProxyErrors(t *testing.T) {
	s := setupAgentTest(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/leaderboard?type=total_pulls", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil proxy status got=%d want=503", rec.Code)
	}

	s = setupAgentTest(t, &stubProxy{callErr: types.ErrAuth})
	rec = doRequest(t, s, http.MethodGet, "/api/leaderboard?type=total_pulls", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("auth error status got=%d want=401", rec.Code)
	}

	// サーバーに弾かれた要求（4xx相当）は呼び出し側のバグとして400で返す
	s = setupAgentTest(t, &stubProxy{callErr: fmt.Errorf("%w (400): unknown view type", types.ErrRejected)})
	rec = doRequest(t, s, http.MethodGet, "/api/leaderboard?type=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("rejected request status got=%d want=400", rec.Code)
	}

	s = setupAgentTest(t, &stubProxy{callErr: types.ErrTransient})
	rec = doRequest(t, s, http.MethodGet, "/api/leaderboard?type=total_pulls", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("transient error status got=%d want=502", rec.Code)
	}
}
