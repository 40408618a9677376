package engine

import "golang.org/x/time/rate"

// newBWLimiter creates a rate.Limiter that caps aggregate copy
// throughput to bytesPerSec across every worker in a driver. The burst
// is capped at 1 MiB so a single extent/block doesn't have to queue
// behind a token bucket sized for much smaller requests.
func newBWLimiter(bytesPerSec int64) *rate.Limiter {
	const maxBurst = 1 << 20
	burst := maxBurst
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}
