package scheduler

import (
	"math"
	"time"
)

// bucketIdleTTL is how long an untouched rate bucket survives before the
// sweep prunes it.
const bucketIdleTTL = 10 * time.Minute

// bucket is a continuously refilled token bucket. Capacity and refill
// rate are both StartsPerMinute, so a requester can burst a full minute's
// budget and then sustains one start per refill interval.
type bucket struct {
	tokens float64
	last   time.Time
}

// takeToken consumes one token from ip's bucket, creating it full on
// first sight. Callers hold s.mu.
func (s *Scheduler) takeToken(ip string, now time.Time) bool {
	capacity := float64(s.cfg.StartsPerMinute)
	b, ok := s.buckets[ip]
	if !ok {
		b = &bucket{tokens: capacity, last: now}
		s.buckets[ip] = b
	}
	b.tokens = math.Min(capacity, b.tokens+now.Sub(b.last).Minutes()*capacity)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// pruneBuckets drops buckets idle past the TTL.
func (s *Scheduler) pruneBuckets(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ip, b := range s.buckets {
		if now.Sub(b.last) > bucketIdleTTL {
			delete(s.buckets, ip)
		}
	}
}
