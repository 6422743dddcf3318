package scheduler

import (
	"math/rand"
	"time"

	"github.com/phishly/phishly/internal/domain"
)

// sendTimes computes the eligible send time for each of n targets under
// the campaign's delay policy, anchored at launch.
//
// none: every target at launch. fixed: every target at launch plus the
// campaign's min delay, a constant offset rather than a cumulative
// stagger, so campaign duration does not grow with list size. random:
// each target draws its delay independently from [min, max] seconds.
func sendTimes(c *domain.Campaign, n int, launch time.Time, rnd *rand.Rand) []time.Time {
	times := make([]time.Time, n)
	switch c.DelayPolicy {
	case domain.DelayFixed:
		at := launch.Add(time.Duration(c.MinDelaySeconds) * time.Second)
		for i := range times {
			times[i] = at
		}
	case domain.DelayRandom:
		span := c.MaxDelaySeconds - c.MinDelaySeconds
		for i := range times {
			offset := c.MinDelaySeconds
			if span > 0 {
				offset += rnd.Intn(span + 1)
			}
			times[i] = launch.Add(time.Duration(offset) * time.Second)
		}
	default:
		for i := range times {
			times[i] = launch
		}
	}
	return times
}
