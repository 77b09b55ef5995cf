package service

import (
	"context"
	"time"

	"github.com/loomchat/loomchat/internal/domain/usage"
)

// DefaultUsageWindowDays is the default reporting range for usage queries.
const DefaultUsageWindowDays = 30

// AnalyticsService answers usage questions for users and admins from the
// daily rollup rows.
type AnalyticsService struct {
	usage usage.UsageStore
}

// NewAnalyticsService creates a new AnalyticsService.
func NewAnalyticsService(store usage.UsageStore) *AnalyticsService {
	return &AnalyticsService{usage: store}
}

// window normalizes a day count into a [from, to) range ending now.
func window(days int) (time.Time, time.Time) {
	if days <= 0 {
		days = DefaultUsageWindowDays
	}
	now := time.Now().UTC()
	to := now.Add(24 * time.Hour)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -(days - 1))
	return from, to
}

// UserUsage is a user's own usage report.
type UserUsage struct {
	Days   []usage.DailyRow `json:"days"`
	Totals usage.Totals     `json:"totals"`
}

// UserUsage returns a user's daily rows and totals over the last n days.
func (s *AnalyticsService) UserUsage(ctx context.Context, userID string, days int) (*UserUsage, error) {
	from, to := window(days)
	rows, err := s.usage.DailyTotals(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []usage.DailyRow{}
	}
	var totals usage.Totals
	for _, r := range rows {
		totals.Requests += r.Requests
		totals.InputTokens += r.InputTokens
		totals.OutputTokens += r.OutputTokens
		totals.CostMicro += r.CostMicro
	}
	return &UserUsage{Days: rows, Totals: totals}, nil
}

// GlobalTotals sums usage across all users over the last n days.
func (s *AnalyticsService) GlobalTotals(ctx context.Context, days int) (usage.Totals, error) {
	from, to := window(days)
	return s.usage.GlobalTotals(ctx, from, to)
}

// PerModel breaks down usage by model over the last n days, highest cost first.
func (s *AnalyticsService) PerModel(ctx context.Context, days int) ([]usage.ModelTotals, error) {
	from, to := window(days)
	rows, err := s.usage.PerModel(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []usage.ModelTotals{}
	}
	return rows, nil
}

// TopUsers returns the n highest-spending users over the last days days.
func (s *AnalyticsService) TopUsers(ctx context.Context, days, n int) ([]usage.UserSpend, error) {
	from, to := window(days)
	rows, err := s.usage.TopUsers(ctx, from, to, n)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []usage.UserSpend{}
	}
	return rows, nil
}
