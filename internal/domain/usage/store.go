package usage

import (
	"context"
	"time"
)

// Record is one completion's accounting entry, folded into daily rows.
type Record struct {
	UserID       string
	Model        string
	InputTokens  int
	OutputTokens int
	CostMicro    int64
	// At is when the completion happened; it selects the daily bucket (UTC date).
	At time.Time
}

// DailyRow is the per-user per-model per-day aggregate.
type DailyRow struct {
	UserID       string    `json:"user_id,omitempty"`
	Day          time.Time `json:"day"`
	Model        string    `json:"model"`
	Requests     int64     `json:"requests"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostMicro    int64     `json:"cost_micro"`
}

// Totals is a summed aggregate over a time range.
type Totals struct {
	Requests     int64 `json:"requests"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	CostMicro    int64 `json:"cost_micro"`
}

// ModelTotals is Totals broken down by model.
type ModelTotals struct {
	Model string `json:"model"`
	Totals
}

// UserSpend ranks a user by cost over a time range.
type UserSpend struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Totals
}

// UsageStore provides usage aggregation queries.
// Writes happen inside chat.ChatStore.AppendExchange's transaction; this
// interface covers the read side.
// Implementations: SQL (prod), in-memory (test).
type UsageStore interface {
	// DailyTotals returns a user's daily rows within [from, to), oldest first.
	DailyTotals(ctx context.Context, userID string, from, to time.Time) ([]DailyRow, error)

	// GlobalTotals sums usage across all users within [from, to).
	GlobalTotals(ctx context.Context, from, to time.Time) (Totals, error)

	// PerModel breaks down usage by model within [from, to), highest cost first.
	PerModel(ctx context.Context, from, to time.Time) ([]ModelTotals, error)

	// TopUsers returns the n highest-spending users within [from, to).
	TopUsers(ctx context.Context, from, to time.Time, n int) ([]UserSpend, error)
}
