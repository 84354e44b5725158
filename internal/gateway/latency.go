package gateway

import (
	"context"
	"math/rand"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// lowLatencyProbeTimeout bounds how long PointRandomLowLatency spends
// measuring candidates before falling back to uniform random selection.
const lowLatencyProbeTimeout = 2 * time.Second

// rankByLatency pings every candidate concurrently and returns the one with
// the lowest average round-trip time. Candidates that don't answer are
// excluded; if none answer, one candidate is chosen uniformly at random.
func rankByLatency(ctx context.Context, candidates []Descriptor) Descriptor {
	if len(candidates) == 1 {
		return candidates[0]
	}

	ctx, cancel := context.WithTimeout(ctx, lowLatencyProbeTimeout)
	defer cancel()

	type result struct {
		descriptor Descriptor
		avg        time.Duration
		reachable  bool
	}
	results := make([]result, len(candidates))

	var wg sync.WaitGroup
	for i, d := range candidates {
		wg.Add(1)
		go func(i int, d Descriptor) {
			defer wg.Done()
			avg, ok := pingOnce(ctx, d.Host)
			results[i] = result{descriptor: d, avg: avg, reachable: ok}
		}(i, d)
	}
	wg.Wait()

	best := -1
	for i, r := range results {
		if !r.reachable {
			continue
		}
		if best == -1 || r.avg < results[best].avg {
			best = i
		}
	}
	if best == -1 {
		return candidates[rand.Intn(len(candidates))]
	}
	return results[best].descriptor
}

func pingOnce(ctx context.Context, host string) (time.Duration, bool) {
	p, err := probing.NewPinger(host)
	if err != nil {
		return 0, false
	}
	p.SetPrivileged(true)
	p.Count = 2
	p.Interval = 100 * time.Millisecond
	if deadline, ok := ctx.Deadline(); ok {
		p.Timeout = time.Until(deadline)
	} else {
		p.Timeout = lowLatencyProbeTimeout
	}
	if p.Timeout <= 0 {
		return 0, false
	}

	done := make(chan struct{})
	go func() { _ = p.Run(); close(done) }()
	select {
	case <-ctx.Done():
		p.Stop()
		<-done
	case <-done:
	}

	stats := p.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, false
	}
	return stats.AvgRtt, true
}
