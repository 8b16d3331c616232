package ratelimit

import "context"

// RateLimiter controls outbound call throughput per scope, e.g. per
// payment gateway action.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
