// Package ratelimit provides optional global pacing for profile requests.
//
// Proxy sessions already spread requests over many egress IPs, so pacing is
// off by default. When fetch.requests_per_second is set, every fetch waits on
// a shared token bucket before its network phase:
//
//	limiter := ratelimit.New(cfg.Fetch.RequestsPerSecond)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
