package llm

import "time"

// calculateBackoff returns the exponential backoff duration for the given
// zero-based attempt, doubling from initial and capped at max.
func calculateBackoff(attempt int, initial, max time.Duration) time.Duration {
	backoff := initial
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= max {
			return max
		}
	}
	if backoff > max {
		return max
	}
	return backoff
}
