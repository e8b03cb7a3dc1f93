package types

import "time"

// Wire DTOs shared by the sync client and the server handlers.

// UploadRequest carries a batch of records scoped to one account.
type UploadRequest struct {
	AccountKey  string       `json:"account_key"`
	SecondaryID string       `json:"secondary_id,omitempty"`
	Records     []FactRecord `json:"records"`
}

// UploadResponse reports what the server actually persisted. Uploaded is
// the authoritative count of newly inserted records; callers must never
// infer "something changed" from the request size.
type UploadResponse struct {
	Uploaded int `json:"uploaded"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

// DownloadResponse returns the matched records for one account.
type DownloadResponse struct {
	Records    []FactRecord `json:"records"`
	Total      int          `json:"total"`
	ServerTime time.Time    `json:"server_time"`
}

// AccountStatus summarizes one remote account for the status query.
type AccountStatus struct {
	AccountKey       string           `json:"account_key"`
	CountsByCategory map[Category]int `json:"counts_by_category"`
	LastFactAt       *time.Time       `json:"last_fact_at,omitempty"`
}

// StatusResponse lists every account the caller owns on the server.
type StatusResponse struct {
	Accounts []AccountStatus `json:"accounts"`
}

// RankedEntry is one row of a published ranked view.
type RankedEntry struct {
	Rank      int    `json:"rank"`
	MaskedKey string `json:"masked_key"`
	Value     int64  `json:"value"`
}

// RankedViewResponse is the public leaderboard query result. UpdatedAt is
// null only if the view has never been published; an empty Entries slice
// with a non-null UpdatedAt means "ran and found nothing".
type RankedViewResponse struct {
	Type              string        `json:"type"`
	Entries           []RankedEntry `json:"entries"`
	UpdatedAt         *time.Time    `json:"updated_at"`
	TotalParticipants int           `json:"total_participants"`
	CallerRank        *int          `json:"caller_rank,omitempty"`
	CallerValue       *int64        `json:"caller_value,omitempty"`
}

// LeaderboardSettings are the caller's aggregation preferences.
type LeaderboardSettings struct {
	Participate    bool `json:"participate"`
	HideIdentifier bool `json:"hide_identifier"`
}
