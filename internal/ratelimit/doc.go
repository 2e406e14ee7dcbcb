// Package ratelimit decides whether a caller may open a session or start a run.
//
// The Limiter capability interface has two checks: IsRateLimited for request
// rate per key (client IP or user) and IsUsageLimited for a principal's
// monthly run quota. New picks the strategy named in config once at startup:
//
//   - none: never rate limits
//   - token_bucket: golang.org/x/time/rate bucket per key, idle keys expire
//
// When a usage store is supplied the policy also enforces monthly_run_quota
// and counts runs through RunRecorder.
package ratelimit
