package metrics

import (
	"sync/atomic"
	"time"
)

// StallAfter is how long events may stay in flight without any completing
// before the correlator is reported unhealthy.
const StallAfter = 30 * time.Second

type CorrelatorHealth struct {
	inFlight     int64
	processed    uint64
	lastComplete int64
}

func NewCorrelatorHealth() *CorrelatorHealth {
	return &CorrelatorHealth{}
}

func (ch *CorrelatorHealth) Begin() {
	if ch == nil {
		return
	}
	atomic.AddInt64(&ch.inFlight, 1)
}

func (ch *CorrelatorHealth) End() {
	if ch == nil {
		return
	}
	atomic.AddInt64(&ch.inFlight, -1)
	atomic.AddUint64(&ch.processed, 1)
	atomic.StoreInt64(&ch.lastComplete, time.Now().UnixNano())
}

func (ch *CorrelatorHealth) InFlight() int64 {
	return atomic.LoadInt64(&ch.inFlight)
}

func (ch *CorrelatorHealth) Processed() uint64 {
	return atomic.LoadUint64(&ch.processed)
}

func (ch *CorrelatorHealth) IsHealthy() bool {
	if atomic.LoadInt64(&ch.inFlight) == 0 {
		return true
	}
	last := atomic.LoadInt64(&ch.lastComplete)
	if last == 0 {
		return true
	}
	return time.Since(time.Unix(0, last)) < StallAfter
}
