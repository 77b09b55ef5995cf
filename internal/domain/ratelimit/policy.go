package ratelimit

import (
	"time"

	"github.com/loomchat/loomchat/internal/domain/user"
)

// TierPolicy maps (tier, route class) to a Limit.
// Unknown tiers fall back to the free tier; anonymous requests (keyed by
// IP) use the free tier as well.
type TierPolicy struct {
	limits map[user.Tier]map[RouteClass]Limit
}

// DefaultPolicy returns the built-in tier limits.
func DefaultPolicy() *TierPolicy {
	return &TierPolicy{
		limits: map[user.Tier]map[RouteClass]Limit{
			user.TierFree: {
				ClassChat:   {Requests: 20, Window: time.Hour},
				ClassAPI:    {Requests: 300, Window: time.Hour},
				ClassAuth:   {Requests: 10, Window: 10 * time.Minute},
				ClassUpload: {Requests: 10, Window: time.Hour},
			},
			user.TierPro: {
				ClassChat:   {Requests: 200, Window: time.Hour},
				ClassAPI:    {Requests: 3000, Window: time.Hour},
				ClassAuth:   {Requests: 10, Window: 10 * time.Minute},
				ClassUpload: {Requests: 100, Window: time.Hour},
			},
			user.TierEnterprise: {
				ClassChat:   {Requests: 2000, Window: time.Hour},
				ClassAPI:    {Requests: 30000, Window: time.Hour},
				ClassAuth:   {Requests: 10, Window: 10 * time.Minute},
				ClassUpload: {Requests: 1000, Window: time.Hour},
			},
		},
	}
}

// SetLimit overrides the limit for a (tier, class) pair.
func (p *TierPolicy) SetLimit(tier user.Tier, class RouteClass, limit Limit) {
	classLimits, ok := p.limits[tier]
	if !ok {
		classLimits = make(map[RouteClass]Limit)
		p.limits[tier] = classLimits
	}
	classLimits[class] = limit
}

// Limit resolves the limit for a tier and route class.
// Unknown tiers resolve as TierFree.
func (p *TierPolicy) Limit(tier user.Tier, class RouteClass) Limit {
	classLimits, ok := p.limits[tier]
	if !ok {
		classLimits = p.limits[user.TierFree]
	}
	if limit, ok := classLimits[class]; ok {
		return limit
	}
	// A class without an explicit limit gets the API class limit.
	return classLimits[ClassAPI]
}
