package tunnel

import "time"

// MaxBackoff is the ceiling both spec §4.I step 1 and §8's invariant agree
// on.
const MaxBackoff = 15 * time.Second

// BackoffDelay returns the delay before the n-th retry (spec §8:
// backoffDelay(0)=0, backoffDelay(n)=min(2s·2n,15s) for n≥1 — the same
// linear-in-n formula §4.I step 1 spells out as
// "min(2s·2·retryAttempt, 15s)"; see DESIGN.md's Open Question decision).
func BackoffDelay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	d := 2 * time.Second * time.Duration(2*n)
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}
