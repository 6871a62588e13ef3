package metrics

import (
	"sync/atomic"
	"time"
)

// IngressRateCounter is the average gateway event rate since start.
type IngressRateCounter struct {
	events    uint64
	startTime int64
}

func NewIngressRateCounter() *IngressRateCounter {
	return &IngressRateCounter{
		startTime: time.Now().UnixNano(),
	}
}

func (irc *IngressRateCounter) Increment() {
	atomic.AddUint64(&irc.events, 1)
}

func (irc *IngressRateCounter) Count() uint64 {
	return atomic.LoadUint64(&irc.events)
}

func (irc *IngressRateCounter) Rate() float64 {
	elapsed := time.Now().UnixNano() - atomic.LoadInt64(&irc.startTime)
	if elapsed <= 0 {
		return 0
	}
	return float64(irc.Count()) / (float64(elapsed) / 1e9)
}

func (irc *IngressRateCounter) Reset() {
	atomic.StoreUint64(&irc.events, 0)
	atomic.StoreInt64(&irc.startTime, time.Now().UnixNano())
}
