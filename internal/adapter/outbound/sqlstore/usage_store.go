package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loomchat/loomchat/internal/domain/usage"
)

// UsageStore is the SQL implementation of usage.UsageStore. Rows are written
// inside ChatStore.AppendExchange; this side only aggregates them.
type UsageStore struct {
	store *Store
}

var _ usage.UsageStore = (*UsageStore)(nil)

// NewUsageStore creates a UsageStore backed by the given Store.
func NewUsageStore(store *Store) *UsageStore {
	return &UsageStore{store: store}
}

// DailyTotals returns a user's daily rows within [from, to), oldest first.
func (s *UsageStore) DailyTotals(ctx context.Context, userID string, from, to time.Time) ([]usage.DailyRow, error) {
	rows, err := s.store.db.QueryContext(ctx, s.store.bind(
		`SELECT day, model, requests, input_tokens, output_tokens, cost_micro
		 FROM usage_daily
		 WHERE user_id = ? AND day >= ? AND day < ?
		 ORDER BY day, model`), userID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying daily usage: %w", err)
	}
	defer rows.Close()

	var out []usage.DailyRow
	for rows.Next() {
		r := usage.DailyRow{UserID: userID}
		var dayMs int64
		if err := rows.Scan(&dayMs, &r.Model, &r.Requests, &r.InputTokens, &r.OutputTokens, &r.CostMicro); err != nil {
			return nil, fmt.Errorf("scanning daily usage: %w", err)
		}
		r.Day = millisToTime(dayMs)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying daily usage: %w", err)
	}
	return out, nil
}

// GlobalTotals sums usage across all users within [from, to).
func (s *UsageStore) GlobalTotals(ctx context.Context, from, to time.Time) (usage.Totals, error) {
	row := s.store.db.QueryRowContext(ctx, s.store.bind(
		`SELECT COALESCE(SUM(requests), 0), COALESCE(SUM(input_tokens), 0),
		        COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_micro), 0)
		 FROM usage_daily
		 WHERE day >= ? AND day < ?`), from.UnixMilli(), to.UnixMilli())
	var t usage.Totals
	if err := row.Scan(&t.Requests, &t.InputTokens, &t.OutputTokens, &t.CostMicro); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return usage.Totals{}, nil
		}
		return usage.Totals{}, fmt.Errorf("summing usage: %w", err)
	}
	return t, nil
}

// PerModel breaks down usage by model within [from, to), highest cost first.
func (s *UsageStore) PerModel(ctx context.Context, from, to time.Time) ([]usage.ModelTotals, error) {
	rows, err := s.store.db.QueryContext(ctx, s.store.bind(
		`SELECT model, SUM(requests), SUM(input_tokens), SUM(output_tokens), SUM(cost_micro)
		 FROM usage_daily
		 WHERE day >= ? AND day < ?
		 GROUP BY model
		 ORDER BY SUM(cost_micro) DESC, model`), from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying model usage: %w", err)
	}
	defer rows.Close()

	var out []usage.ModelTotals
	for rows.Next() {
		var m usage.ModelTotals
		if err := rows.Scan(&m.Model, &m.Requests, &m.InputTokens, &m.OutputTokens, &m.CostMicro); err != nil {
			return nil, fmt.Errorf("scanning model usage: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying model usage: %w", err)
	}
	return out, nil
}

// TopUsers returns the n highest-spending users within [from, to).
func (s *UsageStore) TopUsers(ctx context.Context, from, to time.Time, n int) ([]usage.UserSpend, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.store.db.QueryContext(ctx, s.store.bind(
		`SELECT u.id, u.email, SUM(d.requests), SUM(d.input_tokens), SUM(d.output_tokens), SUM(d.cost_micro)
		 FROM usage_daily d
		 JOIN users u ON u.id = d.user_id
		 WHERE d.day >= ? AND d.day < ?
		 GROUP BY u.id, u.email
		 ORDER BY SUM(d.cost_micro) DESC, u.id
		 LIMIT ?`), from.UnixMilli(), to.UnixMilli(), n)
	if err != nil {
		return nil, fmt.Errorf("querying top users: %w", err)
	}
	defer rows.Close()

	var out []usage.UserSpend
	for rows.Next() {
		var u usage.UserSpend
		if err := rows.Scan(&u.UserID, &u.Email, &u.Requests, &u.InputTokens, &u.OutputTokens, &u.CostMicro); err != nil {
			return nil, fmt.Errorf("scanning top users: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying top users: %w", err)
	}
	return out, nil
}
