package metrics

import (
	"sync/atomic"
	"time"
)

// LatencyHistogram keeps lock-free min/max/avg of a latency series.
type LatencyHistogram struct {
	min   int64
	max   int64
	count uint64
	sum   int64
}

func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{}
}

func (lh *LatencyHistogram) Record(d time.Duration) {
	ns := int64(d)
	atomic.AddUint64(&lh.count, 1)
	atomic.AddInt64(&lh.sum, ns)

	for {
		oldMin := atomic.LoadInt64(&lh.min)
		if oldMin != 0 && ns >= oldMin {
			break
		}
		if atomic.CompareAndSwapInt64(&lh.min, oldMin, ns) {
			break
		}
	}

	for {
		oldMax := atomic.LoadInt64(&lh.max)
		if ns <= oldMax {
			break
		}
		if atomic.CompareAndSwapInt64(&lh.max, oldMax, ns) {
			break
		}
	}
}

func (lh *LatencyHistogram) Stats() LatencyStats {
	count := atomic.LoadUint64(&lh.count)
	sum := atomic.LoadInt64(&lh.sum)

	var avg time.Duration
	if count > 0 {
		avg = time.Duration(sum / int64(count))
	}

	return LatencyStats{
		Min:   time.Duration(atomic.LoadInt64(&lh.min)),
		Max:   time.Duration(atomic.LoadInt64(&lh.max)),
		Avg:   avg,
		Count: count,
	}
}

type LatencyStats struct {
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
	Count uint64
}
