package scheduler

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/phishly/phishly/internal/domain"
)

func TestSendTimes_NonePolicy(t *testing.T) {
	launch := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := &domain.Campaign{DelayPolicy: domain.DelayNone}

	times := sendTimes(c, 3, launch, rand.New(rand.NewSource(1)))

	assert.Len(t, times, 3)
	for _, at := range times {
		assert.Equal(t, launch, at)
	}
}

// The fixed policy is a constant offset per target, not a cumulative
// stagger: target 50 and target 1 get the same send time.
func TestSendTimes_FixedPolicyIsNotCumulative(t *testing.T) {
	launch := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := &domain.Campaign{DelayPolicy: domain.DelayFixed, MinDelaySeconds: 30}

	times := sendTimes(c, 50, launch, rand.New(rand.NewSource(1)))

	want := launch.Add(30 * time.Second)
	assert.Equal(t, want, times[0])
	assert.Equal(t, want, times[49])
}

func TestSendTimes_RandomPolicyWithinBounds(t *testing.T) {
	launch := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := &domain.Campaign{DelayPolicy: domain.DelayRandom, MinDelaySeconds: 10, MaxDelaySeconds: 20}

	times := sendTimes(c, 200, launch, rand.New(rand.NewSource(42)))

	lo := launch.Add(10 * time.Second)
	hi := launch.Add(20 * time.Second)
	distinct := make(map[time.Time]bool)
	for _, at := range times {
		assert.False(t, at.Before(lo), "send time %v before %v", at, lo)
		assert.False(t, at.After(hi), "send time %v after %v", at, hi)
		distinct[at] = true
	}
	// 200 draws over an 11-value range should not collapse to one value.
	assert.Greater(t, len(distinct), 1)
}

func TestSendTimes_RandomPolicyDegenerateRange(t *testing.T) {
	launch := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := &domain.Campaign{DelayPolicy: domain.DelayRandom, MinDelaySeconds: 15, MaxDelaySeconds: 15}

	times := sendTimes(c, 5, launch, rand.New(rand.NewSource(1)))
	for _, at := range times {
		assert.Equal(t, launch.Add(15*time.Second), at)
	}
}

func TestSendTimes_Empty(t *testing.T) {
	c := &domain.Campaign{DelayPolicy: domain.DelayRandom, MinDelaySeconds: 1, MaxDelaySeconds: 2}
	assert.Empty(t, sendTimes(c, 0, time.Now(), rand.New(rand.NewSource(1))))
}
